package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/auth"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/config"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

const (
	testAccessKey = "AKIA1"
	testSecretKey = "SECRET1"
)

// fakeManager is a test manager that answers the version query and rejects
// requests whose signature does not verify
type fakeManager struct {
	*httptest.Server
	mux      *http.ServeMux
	requests atomic.Int64
}

func newFakeManager(t *testing.T) *fakeManager {
	t.Helper()
	m := &fakeManager{mux: http.NewServeMux()}
	m.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, protocol.VersionInfo{Version: "v6.20220615", Manager: "24.03.0"})
	})
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			m.requests.Add(1)
			if !m.verify(r) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"title": "Unauthorized access"})
				return
			}
		}
		m.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *fakeManager) verify(r *http.Request) bool {
	date, err := time.Parse(auth.TimestampLayout, r.Header.Get(protocol.HeaderDate))
	if err != nil {
		return false
	}
	headers, _, err := auth.Sign(auth.SignInput{
		Method:      r.Method,
		APIVersion:  r.Header.Get(protocol.HeaderAPIVersion),
		Endpoint:    m.URL,
		Date:        date,
		RelURL:      r.URL.RequestURI(),
		ContentType: r.Header.Get(protocol.HeaderContentType),
		Credentials: auth.Credentials{AccessKey: testAccessKey, SecretKey: testSecretKey},
	})
	if err != nil {
		return false
	}
	return headers.Get(protocol.HeaderAuthorization) == r.Header.Get(protocol.HeaderAuthorization)
}

func testConfig(endpoint string, opts ...config.Option) config.APIConfig {
	base := []config.Option{
		config.WithEndpoint(endpoint),
		config.WithCredentials(testAccessKey, testSecretKey),
	}
	return config.Default().With(append(base, opts...)...)
}

func newTestSession(t *testing.T, endpoint string, opts ...Option) *Session {
	t.Helper()
	all := append([]Option{WithLogger(logging.Discard())}, opts...)
	s, err := NewSession(testConfig(endpoint), all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(protocol.HeaderContentType, protocol.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}
