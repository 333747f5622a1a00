package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/config"
	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
)

// Pool is the connection pool shared by every dispatch of one session. HTTP
// connections are reused by the underlying http.Transport; the weighted
// semaphore caps how many dispatches and open handles exist at once.
type Pool struct {
	client    *http.Client
	transport *http.Transport
	dialer    *websocket.Dialer

	sem   *semaphore.Weighted
	limit int64
	inUse atomic.Int64
}

// NewPool builds the HTTP client, WebSocket dialer and concurrency ceiling
// from cfg. middleware wraps the HTTP round tripper and may be nil.
func NewPool(cfg config.APIConfig, middleware Middleware) *Pool {
	netDialer := &net.Dialer{
		Timeout:   cfg.Connection.Timeout,
		KeepAlive: cfg.Connection.KeepAlive,
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		// #nosec G402 -- opt-in for self-hosted managers with private CAs
		InsecureSkipVerify: cfg.SkipSSLVerification,
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         netDialer.DialContext,
		MaxIdleConns:        cfg.Connection.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Connection.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.Connection.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Connection.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.Connection.HandshakeTimeout,
		TLSClientConfig:     tlsConfig,
		ForceAttemptHTTP2:   true,
	}

	var rt http.RoundTripper = tr
	if middleware != nil {
		rt = middleware.Wrap(rt)
	}

	limit := int64(cfg.Performance.MaxConcurrency)
	if limit <= 0 {
		limit = 1
	}

	return &Pool{
		// No client-wide timeout; each dispatch is bounded by its context.
		client:    &http.Client{Transport: rt},
		transport: tr,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			NetDialContext:   netDialer.DialContext,
			HandshakeTimeout: cfg.Connection.HandshakeTimeout,
			TLSClientConfig:  tlsConfig.Clone(),
		},
		sem:   semaphore.NewWeighted(limit),
		limit: limit,
	}
}

// Client returns the pooled HTTP client
func (p *Pool) Client() *http.Client {
	return p.client
}

// Acquire blocks until a slot is free or ctx ends
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		if cerr := clienterrors.FromContext(ctx, "acquire connection"); cerr != nil {
			return nil, cerr
		}
		return nil, clienterrors.TransportError("http", "acquire connection", err)
	}
	p.inUse.Add(1)
	return &Lease{pool: p}, nil
}

// InUse returns the number of held leases
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Limit returns the concurrency ceiling
func (p *Pool) Limit() int {
	return int(p.limit)
}

// Close drops idle keep-alive connections. Held leases stay valid.
func (p *Pool) Close() {
	p.transport.CloseIdleConnections()
}

// Lease is one slot of the pool's concurrency ceiling
type Lease struct {
	pool *Pool
	once sync.Once
}

// Release returns the slot. Only the first call has an effect.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.pool.inUse.Add(-1)
		l.pool.sem.Release(1)
	})
}

// closeHook runs a handle's close when the context that opened it ends. A
// context already done at attach time fires the hook on another goroutine;
// detach waits for attach to finish so the stop func is never read early.
type closeHook struct {
	mu   sync.Mutex
	stop func() bool
}

func (k *closeHook) attach(ctx context.Context, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stop = context.AfterFunc(ctx, fn)
}

func (k *closeHook) detach() {
	k.mu.Lock()
	stop := k.stop
	k.mu.Unlock()
	if stop != nil {
		stop()
	}
}
