package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/config"
	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/transport"
)

func newTestObservability(t *testing.T) (*Observability, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	o, err := New(Config{
		EnableTracing: true,
		TracingConfig: TracingConfig{Exporter: exporter},
		EnableMetrics: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Shutdown(context.Background()) })
	return o, exporter
}

func newManager(t *testing.T, traceparents chan<- string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(protocol.HeaderContentType, protocol.ContentTypeJSON)
		_ = json.NewEncoder(w).Encode(protocol.VersionInfo{Version: "v6.20220615"})
	})
	mux.HandleFunc("GET /folders", func(w http.ResponseWriter, r *http.Request) {
		if traceparents != nil {
			traceparents <- r.Header.Get("traceparent")
		}
		w.Header().Set(protocol.HeaderContentType, protocol.ContentTypeJSON)
		_, _ = io.WriteString(w, `[]`)
	})
	mux.HandleFunc("GET /missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(protocol.HeaderContentType, protocol.ContentTypeJSON)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"title":"not found"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newDispatcher(t *testing.T, endpoint string, o *Observability) *transport.Dispatcher {
	t.Helper()
	cfg := config.Default().With(
		config.WithEndpoint(endpoint),
		config.WithCredentials("AKIA1", "SECRET1"),
	)
	d, err := transport.NewDispatcher(cfg,
		transport.WithLogger(logging.Discard()),
		transport.WithObserver(o.Observer()),
		transport.WithMiddleware(o.Middleware()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDispatchIsTracedAndCounted(t *testing.T) {
	o, exporter := newTestObservability(t)
	traceparents := make(chan string, 1)
	srv := newManager(t, traceparents)
	d := newDispatcher(t, srv.URL, o)

	resp, err := d.Fetch(context.Background(), transport.NewRequest(http.MethodGet, "/folders"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.NotEmpty(t, <-traceparents, "trace context is injected")

	m := o.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("fetch", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.negotiationTotal.WithLabelValues("negotiated")))
	// The query and the fetch both pass through the middleware.
	assert.Equal(t, uint64(2), httpSamples(t, m))

	require.NoError(t, o.Tracer().ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	var dispatch, roundTrip bool
	for _, s := range spans {
		switch s.Name {
		case "backendai.fetch":
			dispatch = true
			assert.Equal(t, codes.Ok, s.Status.Code)
		case "HTTP GET":
			if s.Parent.IsValid() {
				roundTrip = true
			}
		}
	}
	assert.True(t, dispatch, "dispatch span exported")
	assert.True(t, roundTrip, "round trip span is a child of the dispatch span")
}

func TestRejectedDispatchIsLabelledByStatus(t *testing.T) {
	o, exporter := newTestObservability(t)
	srv := newManager(t, nil)
	d := newDispatcher(t, srv.URL, o)

	_, err := d.Fetch(context.Background(), transport.NewRequest(http.MethodGet, "/missing"))
	require.Error(t, err)

	m := o.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("fetch", "404")))

	require.NoError(t, o.Tracer().ForceFlush(context.Background()))
	for _, s := range exporter.GetSpans() {
		if s.Name == "backendai.fetch" {
			assert.Equal(t, codes.Error, s.Status.Code)
		}
	}
}

func TestDispatchObserverStreamsAndBytes(t *testing.T) {
	m, err := NewMetricsProvider(MetricsConfig{})
	require.NoError(t, err)
	obs := NewDispatchObserver(nil, m)

	obs.StreamOpened(transport.ModeEvents)
	obs.StreamOpened(transport.ModeEvents)
	obs.StreamReleased(transport.ModeEvents)
	obs.BytesTransferred(transport.ModeDownload, 1024)
	obs.BytesTransferred(transport.ModeDownload, 0)
	obs.VersionNegotiated("v6.20220615", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.openStreams.WithLabelValues("events")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.transferBytes.WithLabelValues("download")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.negotiationTotal.WithLabelValues("fallback")))

	_, finish := obs.DispatchStarted(context.Background(), transport.DispatchInfo{Mode: transport.ModeUpload})
	finish(0, clienterrors.Cancelled("upload", context.Canceled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("upload", "cancelled")))
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "success", statusLabel(200, nil))
	assert.Equal(t, "503", statusLabel(503, errors.New("unavailable")))
	assert.Equal(t, "unknown", statusLabel(0, errors.New("boom")))
}

func TestMetricsHandlerExposesNames(t *testing.T) {
	m, err := NewMetricsProvider(MetricsConfig{Namespace: "backendai_client"})
	require.NoError(t, err)
	m.RecordDispatch(context.Background(), "fetch", "success", 0)
	m.RecordNegotiation("negotiated")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "backendai_client_dispatch_total"))
	assert.True(t, strings.Contains(body, "backendai_client_version_negotiation_total"))
}

func TestMetricsServerStartShutdown(t *testing.T) {
	m, err := NewMetricsProvider(MetricsConfig{MetricsAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	addr := m.Addr()
	require.NotNil(t, addr)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Nil(t, m.Addr())
}

func TestTracingProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewTracingProvider(TracingConfig{ExporterType: "zipkin"})
	require.Error(t, err)
}

func httpSamples(t *testing.T, m *PrometheusMetricsProvider) uint64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var n uint64
	for _, mf := range families {
		if mf.GetName() != "backendai_client_http_request_duration_milliseconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			n += metric.GetHistogram().GetSampleCount()
		}
	}
	return n
}
