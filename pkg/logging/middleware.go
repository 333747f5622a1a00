package logging

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the client-generated request ID
const RequestIDHeader = "X-Request-ID"

// RoundTripperFunc adapts a function to http.RoundTripper
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// HTTPClientMiddleware logs every outgoing round trip and stamps an
// X-Request-ID header when the request has none. The request ID comes from
// the request context when present, otherwise from generator.
func HTTPClientMiddleware(logger Logger, generator RequestIDGenerator) func(http.RoundTripper) http.RoundTripper {
	if generator == nil {
		generator = &UUIDGenerator{}
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = RequestIDFromContext(r.Context())
			}
			if requestID == "" {
				requestID = generator.Generate()
			}
			if r.Header.Get(RequestIDHeader) == "" {
				r = r.Clone(ContextWithRequestID(r.Context(), requestID))
				r.Header.Set(RequestIDHeader, requestID)
			}

			reqLogger := logger.WithFields(
				String(keyRequestID, requestID),
				String("method", r.Method),
				String("path", r.URL.Path),
				String("host", r.URL.Host),
			)
			reqLogger.Debug("HTTP request started")

			start := time.Now()
			resp, err := next.RoundTrip(r)
			duration := time.Since(start)

			if err != nil {
				reqLogger.WithError(err).WithFields(
					Duration("duration", duration),
				).Warn("HTTP request failed")
				return nil, err
			}

			reqLogger.WithFields(
				Int("status", resp.StatusCode),
				Int64("content_length", resp.ContentLength),
				Duration("duration", duration),
			).Debug("HTTP request completed")
			return resp, nil
		})
	}
}

// ContextMiddleware logs the start and outcome of each dispatch
type ContextMiddleware struct {
	logger    Logger
	generator RequestIDGenerator
}

// NewContextMiddleware creates a new context middleware
func NewContextMiddleware(logger Logger) *ContextMiddleware {
	return &ContextMiddleware{logger: logger, generator: &UUIDGenerator{}}
}

// Run executes fn with a request ID in its context and logs how it ended.
// mode names the dispatch mode in every entry.
func (m *ContextMiddleware) Run(ctx context.Context, mode string, fn func(context.Context) error) error {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = m.generator.Generate()
		ctx = ContextWithRequestID(ctx, requestID)
	}

	logger := m.logger.WithFields(
		String(keyRequestID, requestID),
		String(keyMode, mode),
	)
	logger.Debug("Dispatch started")

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		logger.WithError(err).WithFields(
			Duration("duration", duration),
		).Debug("Dispatch failed")
	} else {
		logger.WithFields(
			Duration("duration", duration),
		).Debug("Dispatch completed")
	}

	return err
}

// RequestIDGenerator generates unique request IDs
type RequestIDGenerator interface {
	Generate() string
}

// UUIDGenerator generates UUID request IDs
type UUIDGenerator struct{}

// Generate generates a new UUID
func (g *UUIDGenerator) Generate() string {
	return uuid.New().String()
}

// PrefixedGenerator generates prefixed request IDs
type PrefixedGenerator struct {
	Prefix    string
	Generator RequestIDGenerator
}

// Generate generates a new prefixed ID
func (g *PrefixedGenerator) Generate() string {
	base := g.Generator.Generate()
	return fmt.Sprintf("%s-%s", g.Prefix, base)
}
