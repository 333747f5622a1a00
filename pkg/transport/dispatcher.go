package transport

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/config"
	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
)

// Dispatcher signs requests and executes them in one of five modes over a
// shared Pool. It is safe for concurrent use.
type Dispatcher struct {
	cfg        config.APIConfig
	endpoint   *url.URL
	pool       *Pool
	negotiator *Negotiator
	logger     logging.Logger
	ops        *logging.ContextMiddleware
	observer   Observer
	stats      *StatsObserver
	clock      func() time.Time

	extraObservers []Observer
	middleware     []Middleware
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger
func WithLogger(logger logging.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver adds an observer next to the built-in statistics
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		if observer != nil {
			d.extraObservers = append(d.extraObservers, observer)
		}
	}
}

// WithMiddleware wraps the HTTP round tripper. The first middleware is the
// outermost.
func WithMiddleware(middleware ...Middleware) Option {
	return func(d *Dispatcher) {
		d.middleware = append(d.middleware, middleware...)
	}
}

// WithClock overrides the signing clock
func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// NewDispatcher creates a dispatcher for cfg
func NewDispatcher(cfg config.APIConfig, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := cfg.EndpointURL()
	if err != nil {
		return nil, clienterrors.InvalidParameter("endpoint", cfg.Endpoint, err.Error())
	}

	d := &Dispatcher{
		cfg:      cfg,
		endpoint: endpoint,
		logger:   logging.GetGlobalLogger(),
		stats:    NewStatsObserver(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithFields(logging.String("component", "dispatcher"))
	d.ops = logging.NewContextMiddleware(d.logger)
	d.observer = append(MultiObserver{d.stats}, d.extraObservers...)

	chain := append(append([]Middleware(nil), d.middleware...),
		MiddlewareFunc(logging.HTTPClientMiddleware(d.logger, nil)))
	d.pool = NewPool(cfg, ChainMiddleware(chain...))

	d.negotiator, err = NewNegotiator(NegotiatorConfig{
		Client:     d.pool.Client(),
		Endpoint:   endpoint,
		Configured: cfg.Version,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.Performance.VersionQueryTimeout,
		Logger:     d.logger,
		Observer:   d.observer,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Config returns the dispatcher configuration
func (d *Dispatcher) Config() config.APIConfig {
	return d.cfg
}

// Pool returns the shared connection pool
func (d *Dispatcher) Pool() *Pool {
	return d.pool
}

// Negotiator returns the session's version negotiator
func (d *Dispatcher) Negotiator() *Negotiator {
	return d.negotiator
}

// Stats returns the in-process dispatch statistics
func (d *Dispatcher) Stats() StatsSnapshot {
	return d.stats.Snapshot()
}

// Close releases idle connections. Open handles must be closed by their owners.
func (d *Dispatcher) Close() error {
	d.pool.Close()
	return nil
}

// call is one dispatch that has passed negotiation, signing and lease acquisition
type call struct {
	ctx      context.Context
	mode     Mode
	rendered *Rendered
	lease    *Lease
	finish   func(status int, err error)
}

// run executes one dispatch under the operation logger. Errors leave it
// stamped with the request ID and the request they belong to.
func (d *Dispatcher) run(ctx context.Context, mode Mode, req *Request, fn func(context.Context) error) error {
	return d.ops.Run(ctx, string(mode), func(ctx context.Context) error {
		err := fn(ctx)
		clientErr, ok := err.(clienterrors.ClientError)
		if !ok {
			return err
		}
		stamp := &clienterrors.Context{
			RequestID: logging.RequestIDFromContext(ctx),
			Mode:      string(mode),
			Timestamp: d.clock(),
		}
		if req != nil {
			stamp.Method = req.Method
			stamp.Path = req.Path
		}
		return clientErr.WithContext(stamp)
	})
}

// begin runs the ordered front half of every dispatch: negotiate the version,
// render and sign the request, then take a lease.
func (d *Dispatcher) begin(ctx context.Context, req *Request, mode Mode) (*call, error) {
	if req == nil {
		return nil, clienterrors.MissingParameter("request")
	}

	version, err := d.negotiator.EnsureVersion(ctx)
	if err != nil {
		return nil, err
	}

	rendered, err := req.Render(RenderInput{
		Endpoint:    d.endpoint,
		SessionMode: d.cfg.EndpointType == config.EndpointTypeSession,
		APIVersion:  version,
		Date:        d.clock(),
		UserAgent:   d.cfg.UserAgent,
		Credentials: d.cfg.Credentials(),
	})
	if err != nil {
		return nil, err
	}

	ctx, finish := d.observer.DispatchStarted(ctx, DispatchInfo{
		Mode:   mode,
		Method: rendered.Method,
		Path:   rendered.URL.Path,
	})

	lease, err := d.pool.Acquire(ctx)
	if err != nil {
		finish(0, err)
		return nil, err
	}

	return &call{
		ctx:      ctx,
		mode:     mode,
		rendered: rendered,
		lease:    lease,
		finish:   finish,
	}, nil
}

// roundTrip sends the rendered request and returns the response once its
// headers arrive. Non-2xx responses are drained into an APIError.
func (d *Dispatcher) roundTrip(c *call, progress *Progress) (*http.Response, error) {
	var (
		body   io.Reader
		upload *multipartBody
	)
	if c.rendered.kind == bodyFiles {
		upload = newMultipartBody(c.ctx, c.rendered.files, c.rendered.boundary, progress)
		body = upload
	} else {
		body = c.rendered.fixedBody()
	}

	httpReq, err := http.NewRequestWithContext(c.ctx, c.rendered.Method, c.rendered.URL.String(), body)
	if err != nil {
		return nil, clienterrors.InvalidParameter("url", c.rendered.URL.String(), err.Error())
	}
	httpReq.Header = c.rendered.Header.Clone()

	resp, err := d.pool.Client().Do(httpReq)
	if upload != nil {
		if err != nil || !isSuccess(resp.StatusCode) {
			upload.abort()
		}
		// A failed part write is the root cause of a failed send.
		if werr := upload.wait(); werr != nil {
			if err == nil {
				resp.Body.Close()
			}
			return nil, d.transportError(c.ctx, "http", "upload body", werr)
		}
	}
	if err != nil {
		return nil, d.transportError(c.ctx, "http", "send request", err)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, apiErrorFrom(resp)
	}
	return resp, nil
}

// transportError maps a send or receive failure to the error taxonomy
func (d *Dispatcher) transportError(ctx context.Context, transport, operation string, err error) error {
	if cerr := clienterrors.FromContext(ctx, operation); cerr != nil {
		return cerr
	}
	if clientErr, ok := clienterrors.AsClientError(err); ok {
		return clientErr
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return clienterrors.ConnectionTimeout(transport, d.cfg.Endpoint, d.cfg.Connection.Timeout)
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) && opErr.Op == "dial" {
		return clienterrors.ConnectionFailed(transport, d.cfg.Endpoint, err)
	}
	return clienterrors.TransportError(transport, operation, err)
}

// Fetch sends req and reads the whole response
func (d *Dispatcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return d.fetch(ctx, req, ModeFetch, nil)
}

// Upload sends req's attached files as a multipart stream. The progress total
// is set to the sum of the file sizes before the request is sent.
func (d *Dispatcher) Upload(ctx context.Context, req *Request, progress *Progress) (*Response, error) {
	if req == nil {
		return nil, clienterrors.MissingParameter("request")
	}
	total := TotalSize(req.Files())
	if progress == nil {
		progress = NewProgress(total, nil)
	} else {
		progress.SetTotal(total)
	}
	return d.fetch(ctx, req, ModeUpload, progress)
}

func (d *Dispatcher) fetch(ctx context.Context, req *Request, mode Mode, progress *Progress) (*Response, error) {
	var out *Response
	err := d.run(ctx, mode, req, func(ctx context.Context) error {
		if mode == ModeFetch && d.cfg.Performance.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.cfg.Performance.RequestTimeout)
			defer cancel()
		}

		c, err := d.begin(ctx, req, mode)
		if err != nil {
			return err
		}
		defer c.lease.Release()

		resp, err := d.roundTrip(c, progress)
		if err != nil {
			c.finish(statusOf(err), err)
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			err = d.transportError(c.ctx, "http", "read response", err)
			c.finish(resp.StatusCode, err)
			return err
		}

		if progress != nil {
			cur, _ := progress.Snapshot()
			progress.finish(cur)
			d.observer.BytesTransferred(mode, cur)
		}

		out = &Response{
			Status: resp.StatusCode,
			Reason: reasonPhrase(resp),
			Header: resp.Header,
			Body:   body,
		}
		c.finish(resp.StatusCode, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// statusOf returns the HTTP status carried by an APIError, or zero
func statusOf(err error) int {
	if data, ok := clienterrors.APIErrorDataOf(err); ok {
		return data.Status
	}
	return 0
}
