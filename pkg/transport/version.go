package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

// Negotiator resolves the API version used for signing. The first call
// queries the manager; the result is cached for the negotiator's lifetime.
type Negotiator struct {
	client     *http.Client
	endpoint   *url.URL
	configured protocol.APIVersion
	userAgent  string
	timeout    time.Duration
	logger     logging.Logger
	observer   Observer

	cached  atomic.Pointer[string]
	group   singleflight.Group
	queries atomic.Int64
}

// NegotiatorConfig holds the inputs of NewNegotiator
type NegotiatorConfig struct {
	Client     *http.Client
	Endpoint   *url.URL
	Configured string
	UserAgent  string
	Timeout    time.Duration
	Logger     logging.Logger
	Observer   Observer
}

// NewNegotiator creates a negotiator. Configured is the client's own version
// tag and the upper bound of the negotiated value.
func NewNegotiator(cfg NegotiatorConfig) (*Negotiator, error) {
	configured, err := protocol.ParseAPIVersion(cfg.Configured)
	if err != nil {
		return nil, clienterrors.InvalidFormat("version", cfg.Configured, "v<major>.<yyyymmdd>")
	}
	if cfg.Endpoint == nil {
		return nil, clienterrors.MissingParameter("endpoint")
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Negotiator{
		client:     client,
		endpoint:   cfg.Endpoint,
		configured: configured,
		userAgent:  cfg.UserAgent,
		timeout:    cfg.Timeout,
		logger:     logger.WithFields(logging.String("component", "negotiator")),
		observer:   observer,
	}, nil
}

// EnsureVersion returns the negotiated version, querying the manager on first
// use. Concurrent first callers share one query. A failed query falls back to
// the configured version, which is then cached as well. Only ctx ending
// before a value is available yields an error.
func (n *Negotiator) EnsureVersion(ctx context.Context) (string, error) {
	if v := n.cached.Load(); v != nil {
		return *v, nil
	}

	// The query ignores caller cancellation; each waiter honors its own ctx.
	ch := n.group.DoChan("version", func() (interface{}, error) {
		if v := n.cached.Load(); v != nil {
			return *v, nil
		}
		v := n.query(context.WithoutCancel(ctx))
		n.cached.CompareAndSwap(nil, &v)
		return *n.cached.Load(), nil
	})

	select {
	case res := <-ch:
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", clienterrors.FromContext(ctx, "negotiate version")
	}
}

// Cached returns the negotiated version and whether negotiation happened
func (n *Negotiator) Cached() (string, bool) {
	if v := n.cached.Load(); v != nil {
		return *v, true
	}
	return "", false
}

// Queries returns how many query round trips were issued
func (n *Negotiator) Queries() int64 {
	return n.queries.Load()
}

func (n *Negotiator) query(ctx context.Context) string {
	n.queries.Add(1)
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	info, err := n.fetchInfo(ctx)
	if err != nil {
		fallback := n.configured.String()
		n.logger.WithError(err).WithFields(
			logging.String("version", fallback),
		).Warn("Version query failed, using configured version")
		n.observer.VersionNegotiated(fallback, true)
		return fallback
	}

	server, err := protocol.ParseAPIVersion(info.Version)
	if err != nil {
		fallback := n.configured.String()
		n.logger.WithFields(
			logging.String("server_version", info.Version),
			logging.String("version", fallback),
		).Warn("Unrecognized server version, using configured version")
		n.observer.VersionNegotiated(fallback, true)
		return fallback
	}

	if server.Compare(n.configured) > 0 {
		n.logger.WithFields(
			logging.String("server_version", server.String()),
			logging.String("client_version", n.configured.String()),
		).Warn("Server API is newer than this client; some features may be unavailable")
	}

	negotiated := protocol.MinVersion(server, n.configured).String()
	n.logger.WithFields(
		logging.String("version", negotiated),
		logging.String("manager", info.Manager),
	).Debug("API version negotiated")
	n.observer.VersionNegotiated(negotiated, false)
	return negotiated
}

func (n *Negotiator) fetchInfo(ctx context.Context) (*protocol.VersionInfo, error) {
	target, err := joinURL(n.endpoint, "/")
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	if n.userAgent != "" {
		httpReq.Header.Set(protocol.HeaderUserAgent, n.userAgent)
	}

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return nil, clienterrors.ConnectionFailed("http", n.endpoint.String(), err)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, apiErrorFrom(resp)
	}
	defer resp.Body.Close()

	var info protocol.VersionInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&info); err != nil {
		return nil, clienterrors.MalformedResponse("version query", err)
	}
	return &info, nil
}
