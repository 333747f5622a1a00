package transport

import (
	"context"
	stderrors "errors"
	"io"
	"iter"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

// closeGracePeriod bounds the close frame write in DuplexHandle.Close
const closeGracePeriod = time.Second

// Frame types carried by a duplex connection
const (
	TextFrame   = websocket.TextMessage
	BinaryFrame = websocket.BinaryMessage
)

// Frame is one message received on a duplex connection
type Frame struct {
	Type int
	Data []byte
}

// Text returns the frame payload as a string
func (f Frame) Text() string {
	return string(f.Data)
}

// Duplex opens a WebSocket to req's path with the signed headers. The handle
// holds a pool lease until it is closed, the peer closes or ctx ends.
func (d *Dispatcher) Duplex(ctx context.Context, req *Request) (*DuplexHandle, error) {
	var handle *DuplexHandle
	err := d.run(ctx, ModeDuplex, req, func(ctx context.Context) error {
		c, err := d.begin(ctx, req, ModeDuplex)
		if err != nil {
			return err
		}

		wsURL := *c.rendered.URL
		switch wsURL.Scheme {
		case "https":
			wsURL.Scheme = "wss"
		default:
			wsURL.Scheme = "ws"
		}

		// The dialer bypasses the HTTP middleware, so the handshake carries
		// the request ID here.
		header := c.rendered.Header.Clone()
		requestID := logging.RequestIDFromContext(ctx)
		if header.Get(logging.RequestIDHeader) == "" && requestID != "" {
			header.Set(logging.RequestIDHeader, requestID)
		}

		conn, resp, err := d.pool.dialer.DialContext(c.ctx, wsURL.String(), header)
		if err != nil {
			if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
				err = apiErrorFrom(resp)
			} else {
				err = d.transportError(c.ctx, "websocket", "handshake", err)
			}
			c.lease.Release()
			c.finish(statusOf(err), err)
			return err
		}

		c.finish(resp.StatusCode, nil)
		d.logger.WithContext(ctx).Debug("WebSocket handshake completed",
			logging.String("url", wsURL.String()),
			logging.Int("status", resp.StatusCode),
		)
		d.observer.StreamOpened(ModeDuplex)
		handle = newDuplexHandle(ctx, conn, c.lease, d.observer, wsURL.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// DuplexHandle is an open WebSocket, used for interactive kernel PTYs. One
// goroutine may read while others write; Close is safe from any goroutine.
type DuplexHandle struct {
	conn     *websocket.Conn
	lease    *Lease
	observer Observer
	endpoint string
	onDone   closeHook

	readMu  sync.Mutex
	writeMu sync.Mutex

	eof       atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	excMu     sync.Mutex
	exception error
}

func newDuplexHandle(ctx context.Context, conn *websocket.Conn, lease *Lease, observer Observer, endpoint string) *DuplexHandle {
	h := &DuplexHandle{
		conn:     conn,
		lease:    lease,
		observer: observer,
		endpoint: endpoint,
	}
	h.onDone.attach(ctx, func() { h.Close() })
	return h
}

// Next blocks until the next frame arrives. It returns io.EOF after the peer
// closes normally and an ErrStreamClosed error after Close. Cancelling ctx
// while waiting closes the handle.
func (h *DuplexHandle) Next(ctx context.Context) (Frame, error) {
	h.readMu.Lock()
	defer h.readMu.Unlock()

	if h.eof.Load() {
		return Frame{}, io.EOF
	}
	if h.closed.Load() {
		return Frame{}, clienterrors.StreamClosed("websocket")
	}
	if cerr := clienterrors.FromContext(ctx, "receive frame"); cerr != nil {
		h.Close()
		return Frame{}, cerr
	}

	stop := context.AfterFunc(ctx, func() { h.Close() })
	mt, data, err := h.conn.ReadMessage()
	stop()
	if err == nil {
		return Frame{Type: mt, Data: data}, nil
	}

	// Close waits for a concurrent close to finish releasing the lease.
	if cerr := clienterrors.FromContext(ctx, "receive frame"); cerr != nil {
		h.Close()
		return Frame{}, cerr
	}
	if h.closed.Load() {
		h.Close()
		return Frame{}, clienterrors.StreamClosed("websocket")
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.eof.Store(true)
		h.Close()
		return Frame{}, io.EOF
	}
	derr := clienterrors.DuplexError(h.endpoint, "receive", err)
	h.setException(derr)
	h.Close()
	return Frame{}, derr
}

// All iterates incoming frames until the peer closes or an error occurs
func (h *DuplexHandle) All(ctx context.Context) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			f, err := h.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(Frame{}, err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// SendText writes a raw text frame
func (h *DuplexHandle) SendText(ctx context.Context, text string) error {
	return h.write(ctx, "send", websocket.TextMessage, []byte(text))
}

// Resize sends a resize control frame
func (h *DuplexHandle) Resize(ctx context.Context, rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return clienterrors.InvalidParameter("size", []int{rows, cols}, "rows and cols must be positive")
	}
	return h.write(ctx, "resize", websocket.TextMessage, protocol.ResizeFrame(rows, cols))
}

// Restart sends a restart control frame
func (h *DuplexHandle) Restart(ctx context.Context) error {
	return h.write(ctx, "restart", websocket.TextMessage, protocol.RestartFrame())
}

func (h *DuplexHandle) write(ctx context.Context, operation string, messageType int, data []byte) error {
	if h.closed.Load() {
		return clienterrors.StreamClosed("websocket")
	}
	if cerr := clienterrors.FromContext(ctx, operation); cerr != nil {
		return cerr
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	_ = h.conn.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = h.conn.UnderlyingConn().SetWriteDeadline(time.Now())
	})
	err := h.conn.WriteMessage(messageType, data)
	stop()
	if err == nil {
		return nil
	}

	if cerr := clienterrors.FromContext(ctx, operation); cerr != nil {
		return cerr
	}
	if h.closed.Load() {
		return clienterrors.StreamClosed("websocket")
	}
	derr := clienterrors.DuplexError(h.endpoint, operation, err)
	h.setException(derr)
	return derr
}

// Exception returns the last transport error, or nil
func (h *DuplexHandle) Exception() error {
	h.excMu.Lock()
	defer h.excMu.Unlock()
	return h.exception
}

func (h *DuplexHandle) setException(err error) {
	h.excMu.Lock()
	h.exception = err
	h.excMu.Unlock()
}

// Closed reports whether the handle has been closed, locally or by the peer
func (h *DuplexHandle) Closed() bool {
	return h.closed.Load()
}

// Close sends a close frame, closes the socket and then returns the pool
// lease. Only the first call has an effect; later calls return nil.
func (h *DuplexHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.onDone.detach()

		_ = h.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		if cerr := h.conn.Close(); cerr != nil && !stderrors.Is(cerr, net.ErrClosed) {
			err = clienterrors.DuplexError(h.endpoint, "close", cerr)
		}

		h.lease.Release()
		h.observer.StreamReleased(ModeDuplex)
	})
	return err
}
