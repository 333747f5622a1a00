package benchmarks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/client"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/config"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

// newManager starts a minimal manager that answers the endpoints the load
// tester uses
func newManager(tb testing.TB) *httptest.Server {
	tb.Helper()
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set(protocol.HeaderContentType, protocol.ContentTypeJSON)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, protocol.VersionInfo{Version: protocol.DefaultAPIVersion, Manager: "24.03.0"})
	})
	mux.HandleFunc("GET /folders", func(w http.ResponseWriter, r *http.Request) {
		reply(w, []client.Folder{{ID: "f-1", Name: "bench"}})
	})
	mux.HandleFunc("POST /folders/{name}/upload", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	tb.Cleanup(srv.Close)
	return srv
}

func newSession(tb testing.TB, endpoint string, opts ...config.Option) *client.Session {
	tb.Helper()
	base := []config.Option{
		config.WithEndpoint(endpoint),
		config.WithCredentials("AKIABENCH", "bench-secret"),
	}
	s, err := client.NewSession(config.Default().With(append(base, opts...)...), client.WithLogger(logging.Discard()))
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { _ = s.Close() })
	return s
}
