package transport

import (
	"io"
	"sync/atomic"
)

// UnknownTotal marks a transfer whose size was not declared
const UnknownTotal int64 = -1

// ProgressFunc receives the transferred byte count and the expected total
type ProgressFunc func(current, total int64)

// Progress is a monotonically increasing transfer counter shared by the I/O
// adapters of one upload or download. It is safe for concurrent use.
type Progress struct {
	current atomic.Int64
	total   atomic.Int64

	// OnProgress, when set, is called after every update
	OnProgress ProgressFunc
}

// NewProgress returns a counter with the given total; pass UnknownTotal when
// the size is not known in advance.
func NewProgress(total int64, onProgress ProgressFunc) *Progress {
	p := &Progress{OnProgress: onProgress}
	p.total.Store(total)
	return p
}

// Snapshot returns the current count and total
func (p *Progress) Snapshot() (current, total int64) {
	if p == nil {
		return 0, UnknownTotal
	}
	return p.current.Load(), p.total.Load()
}

// SetTotal replaces the expected total
func (p *Progress) SetTotal(total int64) {
	if p == nil {
		return
	}
	p.total.Store(total)
}

// Add advances the counter by n bytes. A known total caps the counter.
func (p *Progress) Add(n int64) {
	if p == nil || n <= 0 {
		return
	}
	total := p.total.Load()
	for {
		cur := p.current.Load()
		next := cur + n
		if total >= 0 && next > total {
			next = total
		}
		if next == cur || p.current.CompareAndSwap(cur, next) {
			break
		}
	}
	p.notify()
}

// finish reconciles the counter at the end of a successful transfer: to the
// declared total when known, otherwise to the bytes actually moved.
func (p *Progress) finish(received int64) {
	if p == nil {
		return
	}
	total := p.total.Load()
	if total < 0 {
		total = received
		p.total.Store(total)
	}
	p.current.Store(total)
	p.notify()
}

func (p *Progress) notify() {
	if p.OnProgress != nil {
		cur, total := p.Snapshot()
		p.OnProgress(cur, total)
	}
}

// ProgressReader counts bytes read from an underlying reader
type ProgressReader struct {
	r        io.Reader
	progress *Progress
	n        int64
}

// NewProgressReader wraps r; a nil progress only counts locally
func NewProgressReader(r io.Reader, progress *Progress) *ProgressReader {
	return &ProgressReader{r: r, progress: progress}
}

// Read implements io.Reader
func (pr *ProgressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.n += int64(n)
		pr.progress.Add(int64(n))
	}
	return n, err
}

// N returns the number of bytes read through this adapter
func (pr *ProgressReader) N() int64 {
	return pr.n
}

// ProgressWriter counts bytes written to an underlying writer
type ProgressWriter struct {
	w        io.Writer
	progress *Progress
	n        int64
}

// NewProgressWriter wraps w; a nil progress only counts locally
func NewProgressWriter(w io.Writer, progress *Progress) *ProgressWriter {
	return &ProgressWriter{w: w, progress: progress}
}

// Write implements io.Writer
func (pw *ProgressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	if n > 0 {
		pw.n += int64(n)
		pw.progress.Add(int64(n))
	}
	return n, err
}

// N returns the number of bytes written through this adapter
func (pw *ProgressWriter) N() int64 {
	return pw.n
}

// TotalSize sums the declared sizes of files. It returns UnknownTotal when
// any file has a negative size.
func TotalSize(files []AttachedFile) int64 {
	var total int64
	for _, f := range files {
		if f.Size < 0 {
			return UnknownTotal
		}
		total += f.Size
	}
	return total
}
