package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/transport"
)

// Config configures the observability bundle
type Config struct {
	EnableTracing bool
	TracingConfig TracingConfig

	EnableMetrics bool
	MetricsConfig MetricsConfig
}

// Observability bundles the providers and the adapters the dispatcher takes
type Observability struct {
	tracer  *TracingProvider
	metrics *PrometheusMetricsProvider
}

// New creates the enabled providers
func New(config Config) (*Observability, error) {
	o := &Observability{}

	if config.EnableTracing {
		t, err := NewTracingProvider(config.TracingConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create tracing provider: %w", err)
		}
		o.tracer = t
	}

	if config.EnableMetrics {
		m, err := NewMetricsProvider(config.MetricsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics provider: %w", err)
		}
		o.metrics = m
	}

	return o, nil
}

// Tracer returns the tracing provider, or nil when tracing is disabled
func (o *Observability) Tracer() *TracingProvider {
	return o.tracer
}

// Metrics returns the metrics provider, or nil when metrics are disabled
func (o *Observability) Metrics() *PrometheusMetricsProvider {
	return o.metrics
}

// Enabled reports whether any provider is active
func (o *Observability) Enabled() bool {
	return o.tracer != nil || o.metrics != nil
}

// Observer returns the dispatcher observer for the enabled providers
func (o *Observability) Observer() transport.Observer {
	return NewDispatchObserver(o.tracer, o.metricsProvider())
}

// Middleware returns the HTTP middleware for the enabled providers
func (o *Observability) Middleware() transport.Middleware {
	return NewHTTPMiddleware(o.tracer, o.metricsProvider())
}

// Start starts the metrics server if one is configured
func (o *Observability) Start(ctx context.Context) error {
	if o.metrics != nil {
		return o.metrics.Start(ctx)
	}
	return nil
}

// Shutdown flushes spans and stops the metrics server
func (o *Observability) Shutdown(ctx context.Context) error {
	var err error
	if o.tracer != nil {
		err = o.tracer.Shutdown(ctx)
	}
	if o.metrics != nil {
		if shutdownErr := o.metrics.Shutdown(ctx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}
	return err
}

// metricsProvider avoids handing out a typed nil inside the interface
func (o *Observability) metricsProvider() MetricsProvider {
	if o.metrics == nil {
		return nil
	}
	return o.metrics
}

// HTTPMiddleware times each HTTP round trip and injects W3C trace context.
// The injected headers are outside the signed header set.
type HTTPMiddleware struct {
	tracer  *TracingProvider
	metrics MetricsProvider
}

var _ transport.Middleware = (*HTTPMiddleware)(nil)

// NewHTTPMiddleware creates the round-trip middleware. Either provider may be nil.
func NewHTTPMiddleware(tracer *TracingProvider, metrics MetricsProvider) *HTTPMiddleware {
	return &HTTPMiddleware{tracer: tracer, metrics: metrics}
}

// Wrap implements transport.Middleware
func (m *HTTPMiddleware) Wrap(next http.RoundTripper) http.RoundTripper {
	return &observedRoundTripper{middleware: m, next: next}
}

type observedRoundTripper struct {
	middleware *HTTPMiddleware
	next       http.RoundTripper
}

// RoundTrip implements http.RoundTripper
func (rt *observedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	m := rt.middleware

	var span trace.Span
	if m.tracer != nil {
		ctx, span = m.tracer.StartSpan(ctx, "HTTP "+req.Method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				AttrMethod.String(req.Method),
				AttrPath.String(req.URL.Path),
			),
		)
		defer span.End()

		// RoundTrippers must not modify the caller's request.
		req = req.Clone(ctx)
		m.tracer.Inject(ctx, propagation.HeaderCarrier(req.Header))
	}

	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	duration := time.Since(start)

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	if m.metrics != nil {
		m.metrics.RecordHTTPRequest(ctx, req.Method, status, duration)
	}

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(AttrStatus.Int(resp.StatusCode))
			if resp.StatusCode >= http.StatusBadRequest {
				span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
			}
		}
	}

	return resp, err
}
