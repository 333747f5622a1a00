package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/utils"
)

// ptyServer echoes text frames back with a prefix and records control frames
type ptyServer struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	controls []protocol.PTYControl
	closeNow bool
}

func (s *ptyServer) controlsSeen() []protocol.PTYControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.PTYControl(nil), s.controls...)
}

func (s *ptyServer) handle(t *testing.T, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, verifySignature(t, endpoint, r), "handshake carries the signed headers")
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if s.closeNow {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("bye"))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
			return
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ctl protocol.PTYControl
			if json.Unmarshal(data, &ctl) == nil && ctl.Type != "" {
				s.mu.Lock()
				s.controls = append(s.controls, ctl)
				s.mu.Unlock()
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, append([]byte("echo:"), data...)); err != nil {
				return
			}
		}
	}
}

func TestDuplexResizeRestartThenDoubleClose(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t)
	detector.Start()

	srv, mux := newManager(t, testAPIVersion)
	pty := &ptyServer{}
	mux.HandleFunc("GET /stream/kernel/k1/pty", pty.handle(t, srv.URL))

	d := newTestDispatcher(t, srv.URL, nil)
	ctx := context.Background()
	h, err := d.Duplex(ctx, NewRequest(http.MethodGet, "/stream/kernel/k1/pty"))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Pool().InUse())

	require.NoError(t, h.SendText(ctx, "ls -al\n"))
	frame, err := h.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, TextFrame, frame.Type)
	assert.Equal(t, "echo:ls -al\n", frame.Text())

	require.NoError(t, h.Resize(ctx, 24, 80))
	require.NoError(t, h.Restart(ctx))
	assert.False(t, h.Closed())

	// A round trip after the controls proves the server processed them.
	require.NoError(t, h.SendText(ctx, "pwd\n"))
	frame, err = h.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "echo:pwd\n", frame.Text())
	assert.Equal(t, []protocol.PTYControl{
		{Type: "resize", Rows: 24, Cols: 80},
		{Type: "restart"},
	}, pty.controlsSeen())
	assert.Nil(t, h.Exception())

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.True(t, h.Closed())
	assert.Equal(t, 0, d.Pool().InUse())

	_, err = h.Next(ctx)
	assert.True(t, errors.Is(err, clienterrors.ErrStreamClosed))
	err = h.SendText(ctx, "late")
	assert.True(t, errors.Is(err, clienterrors.ErrStreamClosed))

	srv.Close()
	d.Pool().Close()
	detector.Check()
}

func TestDuplexPeerCloseEndsIteration(t *testing.T) {
	srv, mux := newManager(t, testAPIVersion)
	pty := &ptyServer{closeNow: true}
	mux.HandleFunc("GET /pty", pty.handle(t, srv.URL))

	d := newTestDispatcher(t, srv.URL, nil)
	h, err := d.Duplex(context.Background(), NewRequest(http.MethodGet, "/pty"))
	require.NoError(t, err)

	var frames []string
	for f, err := range h.All(context.Background()) {
		require.NoError(t, err)
		frames = append(frames, f.Text())
	}
	assert.Equal(t, []string{"bye"}, frames)
	assert.True(t, h.Closed())
	assert.Equal(t, 0, d.Pool().InUse())

	_, err = h.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, h.Close())
}

func TestDuplexCancelNextCloses(t *testing.T) {
	srv, mux := newManager(t, testAPIVersion)
	pty := &ptyServer{}
	mux.HandleFunc("GET /pty", pty.handle(t, srv.URL))

	d := newTestDispatcher(t, srv.URL, nil)
	h, err := d.Duplex(context.Background(), NewRequest(http.MethodGet, "/pty"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err = h.Next(ctx)
	require.Error(t, err)
	assert.True(t, clienterrors.IsCode(err, clienterrors.CodeOperationCancelled), "got %v", err)
	assert.True(t, h.Closed())
	assert.Equal(t, 0, d.Pool().InUse())
}

func TestDuplexHandshakeRejected(t *testing.T) {
	srv, mux := newManager(t, testAPIVersion)
	mux.HandleFunc("GET /pty", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"title": "Unauthorized access"})
	})

	d := newTestDispatcher(t, srv.URL, nil)
	_, err := d.Duplex(context.Background(), NewRequest(http.MethodGet, "/pty"))
	require.Error(t, err)

	data, ok := clienterrors.APIErrorDataOf(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, data.Status)
	assert.Equal(t, 0, d.Pool().InUse())
}

func TestDuplexResizeValidation(t *testing.T) {
	srv, mux := newManager(t, testAPIVersion)
	pty := &ptyServer{}
	mux.HandleFunc("GET /pty", pty.handle(t, srv.URL))

	d := newTestDispatcher(t, srv.URL, nil)
	h, err := d.Duplex(context.Background(), NewRequest(http.MethodGet, "/pty"))
	require.NoError(t, err)
	defer h.Close()

	err = h.Resize(context.Background(), 0, 80)
	require.Error(t, err)
	assert.True(t, clienterrors.IsCode(err, clienterrors.CodeInvalidParameter))
	assert.False(t, h.Closed())
}

func TestDuplexHandshakeCarriesRequestID(t *testing.T) {
	srv, mux := newManager(t, testAPIVersion)
	ids := make(chan string, 2)
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("GET /pty", func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, verifySignature(t, srv.URL, r))
		ids <- r.Header.Get(logging.RequestIDHeader)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	})

	d := newTestDispatcher(t, srv.URL, nil)

	h, err := d.Duplex(context.Background(), NewRequest(http.MethodGet, "/pty"))
	require.NoError(t, err)
	assert.NotEmpty(t, <-ids)
	require.NoError(t, h.Close())

	ctx := logging.ContextWithRequestID(context.Background(), "pty-1")
	h, err = d.Duplex(ctx, NewRequest(http.MethodGet, "/pty"))
	require.NoError(t, err)
	assert.Equal(t, "pty-1", <-ids)
	require.NoError(t, h.Close())
}
