package config

import (
	"testing"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/auth"
	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, auth.HashSHA256, cfg.HashType)
	assert.Equal(t, DefaultChunkSize, cfg.Performance.ChunkSize)
	assert.Positive(t, cfg.Performance.MaxConcurrency)
}

func TestFromEnvOverlay(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(map[string]string{
		EnvEndpoint:       "http://127.0.0.1:8081",
		EnvAccessKey:      "AKIA1",
		EnvSecretKey:      "SECRET1",
		EnvHashType:       "SHA512",
		EnvVersion:        "v4.20190615",
		EnvSkipSSL:        "true",
		EnvMaxConcurrency: "4",
		EnvGroup:          "research",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8081", cfg.Endpoint)
	assert.Equal(t, auth.Credentials{AccessKey: "AKIA1", SecretKey: "SECRET1", HashType: auth.HashSHA512}, cfg.Credentials())
	assert.Equal(t, "v4.20190615", cfg.Version)
	assert.True(t, cfg.SkipSSLVerification)
	assert.Equal(t, 4, cfg.Performance.MaxConcurrency)
	assert.Equal(t, "research", cfg.Group)
	assert.Equal(t, "default", cfg.Domain)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		code int
	}{
		{"bad bool", map[string]string{EnvSkipSSL: "maybe"}, clienterrors.CodeInvalidFormat},
		{"bad int", map[string]string{EnvMaxConcurrency: "many"}, clienterrors.CodeInvalidFormat},
		{"bad hash", map[string]string{EnvHashType: "crc32"}, clienterrors.CodeUnsupportedHash},
		{"bad endpoint", map[string]string{EnvEndpoint: "ftp://x"}, clienterrors.CodeInvalidParameter},
		{"bad version", map[string]string{EnvVersion: "latest"}, clienterrors.CodeInvalidFormat},
		{"zero concurrency", map[string]string{EnvMaxConcurrency: "0"}, clienterrors.CodeInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromLookup(lookupFrom(tt.env))
			require.Error(t, err)
			assert.True(t, clienterrors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestOptions(t *testing.T) {
	base := Default()
	cfg := base.With(
		WithEndpoint("https://manager.example"),
		WithCredentials("AK", "SK"),
		WithHashType(auth.HashSHA1),
		WithVersion("v5.20191215"),
		WithMaxConcurrency(2),
		WithChunkSize(1024),
		WithLogLevel("debug"),
		WithMetrics(true),
		WithTracing(true),
		WithSkipSSLVerification(true),
	)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultEndpoint, base.Endpoint, "With must not mutate the receiver")
	assert.Equal(t, "https://manager.example", cfg.Endpoint)
	assert.Equal(t, 1024, cfg.Performance.ChunkSize)
	assert.True(t, cfg.Observability.EnableMetrics)
	assert.True(t, cfg.Observability.EnableTracing)
	assert.NotContains(t, cfg.String(), "SK}")
	assert.Contains(t, cfg.String(), "secret_key=****")
}
