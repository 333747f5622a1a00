package transport

import (
	"net/http"
)

// Middleware wraps the HTTP round tripper shared by all dispatches. It does
// not see WebSocket handshakes.
type Middleware interface {
	// Wrap wraps the given round tripper with middleware functionality
	Wrap(next http.RoundTripper) http.RoundTripper
}

// MiddlewareFunc is an adapter to allow the use of ordinary functions as middleware
type MiddlewareFunc func(http.RoundTripper) http.RoundTripper

// Wrap implements the Middleware interface
func (f MiddlewareFunc) Wrap(next http.RoundTripper) http.RoundTripper {
	return f(next)
}

// ChainMiddleware chains multiple middleware together
func ChainMiddleware(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(rt http.RoundTripper) http.RoundTripper {
		// Apply middleware in reverse order so the first middleware is the outermost
		for i := len(middleware) - 1; i >= 0; i-- {
			if middleware[i] == nil {
				continue
			}
			rt = middleware[i].Wrap(rt)
		}
		return rt
	})
}
