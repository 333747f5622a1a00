// Package config holds the connection settings of a Backend.AI client
// session: endpoint, credentials, signing hash, API version default and the
// limits of the shared connection pool.
//
// Usage:
//
//	cfg, err := config.FromEnv()
//	if err != nil {
//		return err
//	}
//	cfg = cfg.With(config.WithMaxConcurrency(8))
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/auth"
	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

// Environment variables read by FromEnv
const (
	EnvEndpoint       = "BACKEND_ENDPOINT"
	EnvEndpointType   = "BACKEND_ENDPOINT_TYPE"
	EnvAccessKey      = "BACKEND_ACCESS_KEY"
	EnvSecretKey      = "BACKEND_SECRET_KEY"
	EnvHashType       = "BACKEND_HASH_TYPE"
	EnvVersion        = "BACKEND_VERSION"
	EnvDomain         = "BACKEND_DOMAIN"
	EnvGroup          = "BACKEND_GROUP"
	EnvSkipSSL        = "BACKEND_SKIP_SSLCERT_VALIDATION"
	EnvMaxConcurrency = "BACKEND_MAX_CONCURRENCY"
	EnvLogLevel       = "BACKEND_LOG_LEVEL"
)

// EndpointType selects how the manager authenticates callers
type EndpointType string

const (
	// EndpointTypeAPI signs every request with the keypair
	EndpointTypeAPI EndpointType = "api"
	// EndpointTypeSession relies on a login cookie issued by a web proxy
	EndpointTypeSession EndpointType = "session"
)

const (
	DefaultEndpoint  = "https://api.backend.ai"
	DefaultChunkSize = 16 * 1024 * 1024
)

// APIConfig is the immutable configuration of one client session
type APIConfig struct {
	Endpoint     string        `json:"endpoint"`
	EndpointType EndpointType  `json:"endpoint_type"`
	AccessKey    string        `json:"access_key"`
	SecretKey    string        `json:"-"`
	HashType     auth.HashType `json:"hash_type"`
	Version      string        `json:"version"`
	Domain       string        `json:"domain,omitempty"`
	Group        string        `json:"group,omitempty"`
	UserAgent    string        `json:"user_agent"`

	SkipSSLVerification bool `json:"skip_ssl_verification"`

	Connection    ConnectionConfig    `json:"connection"`
	Performance   PerformanceConfig   `json:"performance"`
	Observability ObservabilityConfig `json:"observability"`
}

// ConnectionConfig for connection management
type ConnectionConfig struct {
	Timeout          time.Duration `json:"timeout"`
	KeepAlive        time.Duration `json:"keep_alive"`
	MaxIdleConns     int           `json:"max_idle_conns"`
	MaxConnsPerHost  int           `json:"max_conns_per_host"`
	IdleConnTimeout  time.Duration `json:"idle_conn_timeout"`
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
}

// PerformanceConfig for transfer tuning
type PerformanceConfig struct {
	// MaxConcurrency caps in-flight dispatches, open streams included
	MaxConcurrency int `json:"max_concurrency"`
	// ChunkSize bounds each read while streaming a download to disk
	ChunkSize int `json:"chunk_size"`
	// RequestTimeout applies to fetch calls only; zero disables it
	RequestTimeout time.Duration `json:"request_timeout"`
	// VersionQueryTimeout bounds the version negotiation round trip
	VersionQueryTimeout time.Duration `json:"version_query_timeout"`
}

// ObservabilityConfig for metrics, tracing and logging
type ObservabilityConfig struct {
	EnableMetrics bool   `json:"enable_metrics"`
	EnableTracing bool   `json:"enable_tracing"`
	EnableLogging bool   `json:"enable_logging"`
	LogLevel      string `json:"log_level"`
	MetricsPrefix string `json:"metrics_prefix"`
}

// Default returns a configuration with every field set to its default
func Default() APIConfig {
	return APIConfig{
		Endpoint:     DefaultEndpoint,
		EndpointType: EndpointTypeAPI,
		HashType:     auth.DefaultHashType,
		Version:      protocol.DefaultAPIVersion,
		Domain:       "default",
		UserAgent:    "Backend.AI Client for Go",
		Connection: ConnectionConfig{
			Timeout:          30 * time.Second,
			KeepAlive:        30 * time.Second,
			MaxIdleConns:     100,
			MaxConnsPerHost:  10,
			IdleConnTimeout:  90 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Performance: PerformanceConfig{
			MaxConcurrency:      32,
			ChunkSize:           DefaultChunkSize,
			RequestTimeout:      0,
			VersionQueryTimeout: 5 * time.Second,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: false,
			EnableTracing: false,
			EnableLogging: true,
			LogLevel:      "warn",
			MetricsPrefix: "backendai_client",
		},
	}
}

// FromEnv returns Default overlaid with the BACKEND_* environment variables
func FromEnv() (APIConfig, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (APIConfig, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvEndpoint, &cfg.Endpoint)
	str(EnvAccessKey, &cfg.AccessKey)
	str(EnvSecretKey, &cfg.SecretKey)
	str(EnvVersion, &cfg.Version)
	str(EnvDomain, &cfg.Domain)
	str(EnvGroup, &cfg.Group)
	str(EnvLogLevel, &cfg.Observability.LogLevel)

	if v, ok := lookup(EnvEndpointType); ok && v != "" {
		cfg.EndpointType = EndpointType(strings.ToLower(v))
	}
	if v, ok := lookup(EnvHashType); ok && v != "" {
		cfg.HashType = auth.HashType(strings.ToLower(v))
	}
	if v, ok := lookup(EnvSkipSSL); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, clienterrors.InvalidFormat(EnvSkipSSL, v, "boolean")
		}
		cfg.SkipSSLVerification = b
	}
	if v, ok := lookup(EnvMaxConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, clienterrors.InvalidFormat(EnvMaxConcurrency, v, "integer")
		}
		cfg.Performance.MaxConcurrency = n
	}

	return cfg, cfg.Validate()
}

// Option mutates a configuration
type Option func(*APIConfig)

// With returns a copy of c with opts applied
func (c APIConfig) With(opts ...Option) APIConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithEndpoint sets the manager base URL
func WithEndpoint(endpoint string) Option {
	return func(c *APIConfig) { c.Endpoint = endpoint }
}

// WithCredentials sets the signing keypair
func WithCredentials(accessKey, secretKey string) Option {
	return func(c *APIConfig) {
		c.AccessKey = accessKey
		c.SecretKey = secretKey
	}
}

// WithHashType sets the signing hash
func WithHashType(h auth.HashType) Option {
	return func(c *APIConfig) { c.HashType = h }
}

// WithVersion sets the client's API version tag
func WithVersion(version string) Option {
	return func(c *APIConfig) { c.Version = version }
}

// WithMaxConcurrency sets the dispatch concurrency ceiling
func WithMaxConcurrency(n int) Option {
	return func(c *APIConfig) { c.Performance.MaxConcurrency = n }
}

// WithChunkSize sets the download chunk size
func WithChunkSize(n int) Option {
	return func(c *APIConfig) { c.Performance.ChunkSize = n }
}

// WithSkipSSLVerification disables TLS certificate checks
func WithSkipSSLVerification(skip bool) Option {
	return func(c *APIConfig) { c.SkipSSLVerification = skip }
}

// WithLogLevel sets the session log level
func WithLogLevel(level string) Option {
	return func(c *APIConfig) { c.Observability.LogLevel = level }
}

// WithMetrics toggles the Prometheus collectors
func WithMetrics(enabled bool) Option {
	return func(c *APIConfig) { c.Observability.EnableMetrics = enabled }
}

// WithTracing toggles OpenTelemetry spans
func WithTracing(enabled bool) Option {
	return func(c *APIConfig) { c.Observability.EnableTracing = enabled }
}

// Validate checks the configuration for values the transport cannot use.
// Missing credentials are not rejected here; signing reports them.
func (c APIConfig) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return clienterrors.InvalidParameter("endpoint", c.Endpoint, "must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return clienterrors.InvalidParameter("endpoint", c.Endpoint, "scheme must be http or https")
	}
	switch c.EndpointType {
	case EndpointTypeAPI, EndpointTypeSession:
	default:
		return clienterrors.InvalidParameter("endpoint_type", string(c.EndpointType), "must be api or session")
	}
	if !c.HashType.Valid() {
		return clienterrors.UnsupportedHash(string(c.HashType))
	}
	if _, err := protocol.ParseAPIVersion(c.Version); err != nil {
		return clienterrors.InvalidFormat("version", c.Version, "v<major>.<yyyymmdd>")
	}
	if c.Performance.MaxConcurrency <= 0 {
		return clienterrors.InvalidParameter("max_concurrency", c.Performance.MaxConcurrency, "must be positive")
	}
	if c.Performance.ChunkSize <= 0 {
		return clienterrors.InvalidParameter("chunk_size", c.Performance.ChunkSize, "must be positive")
	}
	if _, err := logging.ParseLevel(c.Observability.LogLevel); err != nil {
		return clienterrors.InvalidParameter("log_level", c.Observability.LogLevel, err.Error())
	}
	return nil
}

// Credentials returns the signing credentials
func (c APIConfig) Credentials() auth.Credentials {
	return auth.Credentials{
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		HashType:  c.HashType,
	}
}

// EndpointURL returns the parsed endpoint
func (c APIConfig) EndpointURL() (*url.URL, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	return u, nil
}

// String renders the configuration with the secret key masked
func (c APIConfig) String() string {
	secret := ""
	if c.SecretKey != "" {
		secret = "****"
	}
	return fmt.Sprintf("APIConfig{endpoint=%s type=%s access_key=%s secret_key=%s hash=%s version=%s}",
		c.Endpoint, c.EndpointType, c.AccessKey, secret, c.HashType, c.Version)
}
