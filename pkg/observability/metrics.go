package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Exposition
	MetricsPath string // HTTP path for metrics endpoint (default: /metrics)
	MetricsAddr string // Listen address for Start; empty disables the server

	// Metric options
	Namespace        string    // Prometheus namespace (default: backendai_client)
	Subsystem        string    // Prometheus subsystem
	HistogramBuckets []float64 // Custom histogram buckets for latency

	// Labels to add to all metrics
	ConstLabels prometheus.Labels

	// Registry receives the collectors. A private registry is created when nil.
	Registry *prometheus.Registry
}

// MetricsProvider records dispatch metrics
type MetricsProvider interface {
	// Dispatch lifecycle
	RecordDispatch(ctx context.Context, mode, status string, duration time.Duration)
	RecordHTTPRequest(ctx context.Context, method, status string, duration time.Duration)
	RecordTransfer(mode string, bytes int64)
	RecordOpenStreams(mode string, delta int)
	RecordNegotiation(result string)

	// Exposition
	Registry() *prometheus.Registry
	Handler() http.Handler

	// Management
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus
type PrometheusMetricsProvider struct {
	config   MetricsConfig
	registry *prometheus.Registry

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	dispatchDuration    *prometheus.HistogramVec
	dispatchTotal       *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	transferBytes       *prometheus.CounterVec
	openStreams         *prometheus.GaugeVec
	negotiationTotal    *prometheus.CounterVec
}

// NewMetricsProvider creates a new Prometheus metrics provider
func NewMetricsProvider(config MetricsConfig) (*PrometheusMetricsProvider, error) {
	// Set defaults
	if config.Namespace == "" {
		config.Namespace = "backendai_client"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.HistogramBuckets == nil {
		// Default buckets for milliseconds; transfers can run for minutes
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 60000, 300000}
	}

	constLabels := prometheus.Labels{}
	for k, v := range config.ConstLabels {
		constLabels[k] = v
	}
	if config.ServiceName != "" {
		constLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		constLabels["version"] = config.ServiceVersion
	}
	if config.Environment != "" {
		constLabels["environment"] = config.Environment
	}
	config.ConstLabels = constLabels

	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	provider := &PrometheusMetricsProvider{
		config:   config,
		registry: registry,
	}
	provider.initializeMetrics()

	if err := provider.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return provider, nil
}

// initializeMetrics creates all metric collectors
func (p *PrometheusMetricsProvider) initializeMetrics() {
	p.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "dispatch_duration_milliseconds",
			Help:        "Duration of dispatches in milliseconds, from signing to the final response or handle open",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"mode", "status"},
	)

	p.dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "dispatch_total",
			Help:        "Total number of dispatches",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"mode", "status"},
	)

	p.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "Duration of HTTP round trips until response headers in milliseconds",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method", "status"},
	)

	p.transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "transfer_bytes_total",
			Help:        "Payload bytes moved by uploads and downloads",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"mode"},
	)

	p.openStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "open_streams",
			Help:        "Number of open event stream and duplex handles",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"mode"},
	)

	p.negotiationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "version_negotiation_total",
			Help:        "Version queries by outcome",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"result"},
	)
}

// registerMetrics registers all metrics with the provider's registry
func (p *PrometheusMetricsProvider) registerMetrics() error {
	collectors := []prometheus.Collector{
		p.dispatchDuration,
		p.dispatchTotal,
		p.httpRequestDuration,
		p.transferBytes,
		p.openStreams,
		p.negotiationTotal,
	}

	for _, collector := range collectors {
		if err := p.registry.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

// RecordDispatch records a finished dispatch
func (p *PrometheusMetricsProvider) RecordDispatch(ctx context.Context, mode, status string, duration time.Duration) {
	ms := float64(duration.Milliseconds())
	p.dispatchDuration.WithLabelValues(mode, status).Observe(ms)
	p.dispatchTotal.WithLabelValues(mode, status).Inc()
}

// RecordHTTPRequest records one HTTP round trip
func (p *PrometheusMetricsProvider) RecordHTTPRequest(ctx context.Context, method, status string, duration time.Duration) {
	ms := float64(duration.Milliseconds())
	p.httpRequestDuration.WithLabelValues(method, status).Observe(ms)
}

// RecordTransfer adds payload bytes for a mode
func (p *PrometheusMetricsProvider) RecordTransfer(mode string, bytes int64) {
	if bytes <= 0 {
		return
	}
	p.transferBytes.WithLabelValues(mode).Add(float64(bytes))
}

// RecordOpenStreams records the change in open handles
func (p *PrometheusMetricsProvider) RecordOpenStreams(mode string, delta int) {
	p.openStreams.WithLabelValues(mode).Add(float64(delta))
}

// RecordNegotiation counts a version query outcome
func (p *PrometheusMetricsProvider) RecordNegotiation(result string) {
	p.negotiationTotal.WithLabelValues(result).Inc()
}

// Registry returns the registry holding the collectors
func (p *PrometheusMetricsProvider) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *PrometheusMetricsProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Start starts the metrics HTTP server when MetricsAddr is set
func (p *PrometheusMetricsProvider) Start(ctx context.Context) error {
	if p.config.MetricsAddr == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server != nil {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", p.config.MetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.config.MetricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, p.Handler())
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	p.listener = ln

	go func(srv *http.Server) {
		_ = srv.Serve(ln)
	}(p.server)
	return nil
}

// Addr returns the metrics server address, or nil before Start
func (p *PrometheusMetricsProvider) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Shutdown gracefully shuts down the metrics server
func (p *PrometheusMetricsProvider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	srv := p.server
	p.server = nil
	p.listener = nil
	p.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
