package client

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/config"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/observability"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/transport"
)

// Session owns the configuration, the dispatcher and the observability
// providers for one API endpoint. It is safe for concurrent use; the resource
// wrappers it hands out share its dispatcher.
type Session struct {
	cfg        config.APIConfig
	logger     logging.Logger
	dispatcher *transport.Dispatcher
	obs        *observability.Observability

	closeOnce sync.Once
	closeErr  error
}

// Option represents a session configuration option
type Option func(*sessionOptions)

type sessionOptions struct {
	logger        logging.Logger
	observers     []transport.Observer
	middleware    []transport.Middleware
	observability *observability.Observability
	tracing       observability.TracingConfig
	clock         func() time.Time
}

// WithLogger replaces the logger built from the configured log level
func WithLogger(logger logging.Logger) Option {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// WithObserver adds a dispatch observer
func WithObserver(observer transport.Observer) Option {
	return func(o *sessionOptions) {
		o.observers = append(o.observers, observer)
	}
}

// WithMiddleware wraps the session's HTTP round tripper
func WithMiddleware(middleware ...transport.Middleware) Option {
	return func(o *sessionOptions) {
		o.middleware = append(o.middleware, middleware...)
	}
}

// WithObservability uses pre-built providers instead of the ones the
// configuration would enable
func WithObservability(obs *observability.Observability) Option {
	return func(o *sessionOptions) {
		o.observability = obs
	}
}

// WithTracingConfig sets exporter details used when tracing is enabled
func WithTracingConfig(tc observability.TracingConfig) Option {
	return func(o *sessionOptions) {
		o.tracing = tc
	}
}

// WithClock overrides the signing clock
func WithClock(clock func() time.Time) Option {
	return func(o *sessionOptions) {
		o.clock = clock
	}
}

// NewSession creates a session for cfg. The configuration is validated here;
// the API version is negotiated lazily by the first dispatch.
func NewSession(cfg config.APIConfig, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &sessionOptions{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = newLogger(cfg)
	}

	obs := o.observability
	if obs == nil {
		tracing := o.tracing
		if tracing.ServiceName == "" {
			tracing.ServiceName = "backendai-client"
		}
		var err error
		obs, err = observability.New(observability.Config{
			EnableTracing: cfg.Observability.EnableTracing,
			TracingConfig: tracing,
			EnableMetrics: cfg.Observability.EnableMetrics,
			MetricsConfig: observability.MetricsConfig{
				Namespace: cfg.Observability.MetricsPrefix,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	dopts := []transport.Option{transport.WithLogger(logger)}
	if obs.Enabled() {
		dopts = append(dopts,
			transport.WithObserver(obs.Observer()),
			transport.WithMiddleware(obs.Middleware()),
		)
	}
	for _, observer := range o.observers {
		dopts = append(dopts, transport.WithObserver(observer))
	}
	dopts = append(dopts, transport.WithMiddleware(o.middleware...))
	if o.clock != nil {
		dopts = append(dopts, transport.WithClock(o.clock))
	}

	dispatcher, err := transport.NewDispatcher(cfg, dopts...)
	if err != nil {
		return nil, err
	}

	logger.Debug("Session created",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("endpoint_type", string(cfg.EndpointType)),
		logging.String("version", cfg.Version),
	)

	return &Session{
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatcher,
		obs:        obs,
	}, nil
}

// NewSessionFromEnv creates a session from the BACKEND_* environment
func NewSessionFromEnv(opts ...Option) (*Session, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	return NewSession(cfg, opts...)
}

func newLogger(cfg config.APIConfig) logging.Logger {
	if !cfg.Observability.EnableLogging {
		return logging.Discard()
	}
	logger := logging.New(os.Stderr, logging.NewTextFormatter())
	// Validate has already checked the level name.
	if level, err := logging.ParseLevel(cfg.Observability.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logger.WithFields(logging.String("component", "session"))
}

// Config returns the session configuration
func (s *Session) Config() config.APIConfig {
	return s.cfg
}

// Logger returns the session logger
func (s *Session) Logger() logging.Logger {
	return s.logger
}

// Dispatcher returns the dispatcher shared by the session's wrappers
func (s *Session) Dispatcher() *transport.Dispatcher {
	return s.dispatcher
}

// Observability returns the session's metrics and tracing providers
func (s *Session) Observability() *observability.Observability {
	return s.obs
}

// Stats returns the in-process dispatch statistics
func (s *Session) Stats() transport.StatsSnapshot {
	return s.dispatcher.Stats()
}

// APIVersion negotiates the API version if needed and returns it
func (s *Session) APIVersion(ctx context.Context) (string, error) {
	return s.dispatcher.Negotiator().EnsureVersion(ctx)
}

// Close releases idle connections and shuts down the observability
// providers. Open stream and duplex handles are not closed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.dispatcher.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.obs.Shutdown(ctx); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
