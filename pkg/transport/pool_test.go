package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/config"
)

func TestPoolLeaseReleaseIsIdempotent(t *testing.T) {
	p := NewPool(testConfig("http://localhost", config.WithMaxConcurrency(2)), nil)
	defer p.Close()

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.InUse())
	lease.Release()
	lease.Release()
	assert.Equal(t, 0, p.InUse())
	assert.Equal(t, 2, p.Limit())
}

func TestStreamHandleOnCancelledContext(t *testing.T) {
	p := NewPool(testConfig("http://localhost"), nil)
	defer p.Close()

	for i := 0; i < 200; i++ {
		lease, err := p.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp := &http.Response{Body: io.NopCloser(strings.NewReader(""))}
		h := newStreamHandle(ctx, func() {}, resp, lease, noopObserver{}, "/events")

		require.Eventually(t, h.Closed, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return p.InUse() == 0 }, time.Second, time.Millisecond)
		require.NoError(t, h.Close())
	}
}

func TestDuplexHandleOnCancelledContext(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	p := NewPool(testConfig(srv.URL), nil)
	defer p.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	for i := 0; i < 20; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		lease, err := p.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		h := newDuplexHandle(ctx, conn, lease, noopObserver{}, wsURL)

		require.Eventually(t, h.Closed, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return p.InUse() == 0 }, time.Second, time.Millisecond)
		require.NoError(t, h.Close())
	}
}
