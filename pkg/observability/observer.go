package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/transport"
)

// DispatchObserver feeds dispatcher callbacks into metrics and traces. Either
// provider may be nil.
type DispatchObserver struct {
	tracer  *TracingProvider
	metrics MetricsProvider
}

var _ transport.Observer = (*DispatchObserver)(nil)

// NewDispatchObserver creates an observer for a dispatcher
func NewDispatchObserver(tracer *TracingProvider, metrics MetricsProvider) *DispatchObserver {
	return &DispatchObserver{tracer: tracer, metrics: metrics}
}

// DispatchStarted opens the dispatch span and starts the duration clock
func (o *DispatchObserver) DispatchStarted(ctx context.Context, info transport.DispatchInfo) (context.Context, func(int, error)) {
	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.StartDispatchSpan(ctx, string(info.Mode), info.Method, info.Path)
	}
	start := time.Now()

	return ctx, func(status int, err error) {
		duration := time.Since(start)
		if o.metrics != nil {
			o.metrics.RecordDispatch(ctx, string(info.Mode), statusLabel(status, err), duration)
		}
		if span == nil {
			return
		}
		if status > 0 {
			span.SetAttributes(AttrStatus.Int(status))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// BytesTransferred implements transport.Observer
func (o *DispatchObserver) BytesTransferred(mode transport.Mode, n int64) {
	if o.metrics != nil {
		o.metrics.RecordTransfer(string(mode), n)
	}
}

// StreamOpened implements transport.Observer
func (o *DispatchObserver) StreamOpened(mode transport.Mode) {
	if o.metrics != nil {
		o.metrics.RecordOpenStreams(string(mode), 1)
	}
}

// StreamReleased implements transport.Observer
func (o *DispatchObserver) StreamReleased(mode transport.Mode) {
	if o.metrics != nil {
		o.metrics.RecordOpenStreams(string(mode), -1)
	}
}

// VersionNegotiated implements transport.Observer
func (o *DispatchObserver) VersionNegotiated(_ string, fallback bool) {
	if o.metrics == nil {
		return
	}
	if fallback {
		o.metrics.RecordNegotiation("fallback")
	} else {
		o.metrics.RecordNegotiation("negotiated")
	}
}

// statusLabel is "success", the HTTP status of a rejected call, or the
// error category of a call that never got a status.
func statusLabel(status int, err error) string {
	if err == nil {
		return "success"
	}
	if status > 0 {
		return strconv.Itoa(status)
	}
	if ce, ok := clienterrors.AsClientError(err); ok {
		return string(ce.Category())
	}
	return "unknown"
}
