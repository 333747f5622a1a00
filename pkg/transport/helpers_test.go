package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/config"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

const (
	testAccessKey  = "AKIA1"
	testSecretKey  = "SECRET1"
	testAPIVersion = "v6.20240101"
)

var testDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newManager starts a test server whose root answers the version query
func newManager(t *testing.T, serverVersion string) (*httptest.Server, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", protocol.ContentTypeJSON)
		_ = json.NewEncoder(w).Encode(protocol.VersionInfo{Version: serverVersion, Manager: "24.03.0"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mux
}

func testConfig(endpoint string, opts ...config.Option) config.APIConfig {
	base := []config.Option{
		config.WithEndpoint(endpoint),
		config.WithCredentials(testAccessKey, testSecretKey),
		config.WithVersion(testAPIVersion),
	}
	return config.Default().With(append(base, opts...)...)
}

func newTestDispatcher(t *testing.T, endpoint string, cfgOpts []config.Option, opts ...Option) *Dispatcher {
	t.Helper()
	all := append([]Option{WithLogger(logging.Discard())}, opts...)
	d, err := NewDispatcher(testConfig(endpoint, cfgOpts...), all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", protocol.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
