package transport

import (
	"bufio"
	"context"
	"io"
	"iter"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

// Events opens a Server-Sent Events subscription. The handle holds a pool
// lease until it is closed, the server ends the stream or ctx ends.
func (d *Dispatcher) Events(ctx context.Context, req *Request) (*StreamHandle, error) {
	if req == nil {
		return nil, clienterrors.MissingParameter("request")
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Accept", protocol.ContentTypeEventStream)
	req.Header.Set("Cache-Control", "no-cache")

	var handle *StreamHandle
	err := d.run(ctx, ModeEvents, req, func(ctx context.Context) error {
		streamCtx, cancel := context.WithCancel(ctx)
		c, err := d.begin(streamCtx, req, ModeEvents)
		if err != nil {
			cancel()
			return err
		}

		resp, err := d.roundTrip(c, nil)
		if err == nil {
			mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(protocol.HeaderContentType))
			if mediaType != protocol.ContentTypeEventStream {
				resp.Body.Close()
				err = clienterrors.EventSourceError(c.rendered.URL.String(),
					"unexpected content type "+strconv.Quote(mediaType), nil)
			}
		}
		if err != nil {
			c.lease.Release()
			cancel()
			c.finish(statusOf(err), err)
			return err
		}

		c.finish(resp.StatusCode, nil)
		d.observer.StreamOpened(ModeEvents)
		handle = newStreamHandle(streamCtx, cancel, resp, c.lease, d.observer, c.rendered.URL.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// StreamHandle is an open SSE subscription. Events are delivered in order,
// each exactly once. It is not restartable.
type StreamHandle struct {
	resp     *http.Response
	reader   *bufio.Reader
	lease    *Lease
	observer Observer
	endpoint string
	cancel   context.CancelFunc
	onDone   closeHook

	mu     sync.Mutex
	eof    bool
	lastID atomic.Value
	retry  time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
}

func newStreamHandle(ctx context.Context, cancel context.CancelFunc, resp *http.Response, lease *Lease, observer Observer, endpoint string) *StreamHandle {
	h := &StreamHandle{
		resp:     resp,
		reader:   bufio.NewReader(resp.Body),
		lease:    lease,
		observer: observer,
		endpoint: endpoint,
		cancel:   cancel,
	}
	h.onDone.attach(ctx, func() { h.Close() })
	return h
}

// Next blocks until the next event arrives. It returns io.EOF once the server
// has closed the stream and an ErrStreamClosed error after Close. Cancelling
// ctx while waiting closes the handle.
func (h *StreamHandle) Next(ctx context.Context) (protocol.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.eof {
		return protocol.Event{}, io.EOF
	}
	if h.closed.Load() {
		return protocol.Event{}, clienterrors.StreamClosed("sse")
	}
	if cerr := clienterrors.FromContext(ctx, "receive event"); cerr != nil {
		h.Close()
		return protocol.Event{}, cerr
	}

	stop := context.AfterFunc(ctx, func() { h.Close() })
	ev, err := h.readEvent()
	stop()
	if err == nil {
		return ev, nil
	}

	// Close waits for a concurrent close to finish releasing the lease.
	if cerr := clienterrors.FromContext(ctx, "receive event"); cerr != nil {
		h.Close()
		return protocol.Event{}, cerr
	}
	if h.closed.Load() {
		h.Close()
		return protocol.Event{}, clienterrors.StreamClosed("sse")
	}
	h.release()
	if err == io.EOF {
		h.eof = true
		return protocol.Event{}, io.EOF
	}
	return protocol.Event{}, clienterrors.EventSourceError(h.endpoint, "read failed", err)
}

// All iterates the remaining events. Iteration stops at server close without
// an error; any other failure is yielded once.
func (h *StreamHandle) All(ctx context.Context) iter.Seq2[protocol.Event, error] {
	return func(yield func(protocol.Event, error) bool) {
		for {
			ev, err := h.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(protocol.Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// LastEventID returns the most recent id field seen on the stream
func (h *StreamHandle) LastEventID() string {
	id, _ := h.lastID.Load().(string)
	return id
}

// Closed reports whether Close has been called
func (h *StreamHandle) Closed() bool {
	return h.closed.Load()
}

// Close ends the subscription and returns its lease. It is safe to call
// more than once.
func (h *StreamHandle) Close() error {
	h.closed.Store(true)
	h.release()
	return nil
}

func (h *StreamHandle) release() {
	h.closeOnce.Do(func() {
		h.onDone.detach()
		h.cancel()
		h.resp.Body.Close()
		h.lease.Release()
		h.observer.StreamReleased(ModeEvents)
	})
}

// readEvent parses lines up to the next blank line that completes an event
// carrying data. A partial event at end of stream is discarded.
func (h *StreamHandle) readEvent() (protocol.Event, error) {
	var (
		eventType string
		data      []string
	)
	for {
		line, err := h.reader.ReadString('\n')
		if err != nil {
			return protocol.Event{}, err
		}
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if data == nil {
				eventType = ""
				continue
			}
			if eventType == "" {
				eventType = protocol.DefaultEventType
			}
			return protocol.Event{
				Type:  eventType,
				Data:  strings.Join(data, "\n"),
				ID:    h.LastEventID(),
				Retry: h.retry,
			}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			data = append(data, value)
		case "id":
			if !strings.ContainsRune(value, 0) {
				h.lastID.Store(value)
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				h.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}
