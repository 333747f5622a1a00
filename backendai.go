// Package backendai is the entry point of the Backend.AI client SDK
package backendai

import (
	"github.com/ajitpratap0/backendai-sdk-go/pkg/client"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/config"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/transport"
)

// Version represents the current version of the SDK
const Version = "1.0.0"

// DefaultAPIVersion is used when the server's version cannot be queried
const DefaultAPIVersion = protocol.DefaultAPIVersion

// These exports provide direct access to the core SDK components
var (
	// NewSession creates a session from a configuration
	NewSession = client.NewSession

	// NewSessionFromEnv creates a session from the BACKEND_* environment
	NewSessionFromEnv = client.NewSessionFromEnv

	// DefaultConfig returns the configuration defaults
	DefaultConfig = config.Default

	// ConfigFromEnv reads the configuration from the environment
	ConfigFromEnv = config.FromEnv

	// NewRequest builds a request for direct dispatch
	NewRequest = transport.NewRequest

	// NewProgress creates a transfer progress counter
	NewProgress = transport.NewProgress
)

// Dispatch modes
const (
	ModeFetch    = transport.ModeFetch
	ModeUpload   = transport.ModeUpload
	ModeDownload = transport.ModeDownload
	ModeEvents   = transport.ModeEvents
	ModeDuplex   = transport.ModeDuplex
)

// Configuration options
var (
	WithEndpoint            = config.WithEndpoint
	WithCredentials         = config.WithCredentials
	WithHashType            = config.WithHashType
	WithAPIVersion          = config.WithVersion
	WithMaxConcurrency      = config.WithMaxConcurrency
	WithChunkSize           = config.WithChunkSize
	WithSkipSSLVerification = config.WithSkipSSLVerification
	WithLogLevel            = config.WithLogLevel
	WithMetrics             = config.WithMetrics
	WithTracing             = config.WithTracing
)

// Session options
var (
	WithLogger        = client.WithLogger
	WithObserver      = client.WithObserver
	WithMiddleware    = client.WithMiddleware
	WithObservability = client.WithObservability
	WithTracingConfig = client.WithTracingConfig
	WithClock         = client.WithClock
)
