package transport

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReaderSumsFiles(t *testing.T) {
	files := []AttachedFile{
		{Filename: "a", Reader: strings.NewReader(strings.Repeat("a", 100)), Size: 100},
		{Filename: "b", Reader: strings.NewReader(strings.Repeat("b", 300)), Size: 300},
	}

	var (
		mu      sync.Mutex
		updates []int64
	)
	p := NewProgress(TotalSize(files), func(current, total int64) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, current)
		assert.LessOrEqual(t, current, total)
	})

	for _, f := range files {
		_, err := io.Copy(io.Discard, NewProgressReader(f.Reader, p))
		require.NoError(t, err)
	}

	current, total := p.Snapshot()
	assert.Equal(t, int64(400), total)
	assert.Equal(t, int64(400), current)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i], updates[i-1])
	}
}

func TestProgressCapsAtTotal(t *testing.T) {
	p := NewProgress(10, nil)
	p.Add(8)
	p.Add(8)
	current, _ := p.Snapshot()
	assert.Equal(t, int64(10), current)
}

func TestProgressFinish(t *testing.T) {
	t.Run("unknown total reconciles to received", func(t *testing.T) {
		p := NewProgress(UnknownTotal, nil)
		p.Add(42)
		p.finish(42)
		current, total := p.Snapshot()
		assert.Equal(t, int64(42), current)
		assert.Equal(t, int64(42), total)
	})

	t.Run("declared total wins", func(t *testing.T) {
		p := NewProgress(100, nil)
		p.Add(60)
		p.finish(60)
		current, total := p.Snapshot()
		assert.Equal(t, int64(100), current)
		assert.Equal(t, int64(100), total)
	})
}

func TestProgressWriter(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(UnknownTotal, nil)
	w := NewProgressWriter(&buf, p)

	_, err := w.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = w.Write([]byte("world"))
	require.NoError(t, err)

	assert.Equal(t, int64(11), w.N())
	current, total := p.Snapshot()
	assert.Equal(t, int64(11), current)
	assert.Equal(t, UnknownTotal, total)
}

func TestNilProgressIsSafe(t *testing.T) {
	var p *Progress
	p.Add(10)
	p.SetTotal(5)
	current, total := p.Snapshot()
	assert.Zero(t, current)
	assert.Equal(t, UnknownTotal, total)

	r := NewProgressReader(strings.NewReader("abc"), nil)
	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.N())
}

func TestTotalSizeUnknown(t *testing.T) {
	assert.Equal(t, UnknownTotal, TotalSize([]AttachedFile{{Size: 1}, {Size: -1}}))
	assert.Equal(t, int64(0), TotalSize(nil))
}
