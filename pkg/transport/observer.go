package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Mode identifies one of the five dispatch behaviours
type Mode string

const (
	ModeFetch    Mode = "fetch"
	ModeUpload   Mode = "upload"
	ModeDownload Mode = "download"
	ModeEvents   Mode = "events"
	ModeDuplex   Mode = "duplex"
)

// DispatchInfo describes a dispatch to an Observer
type DispatchInfo struct {
	Mode   Mode
	Method string
	Path   string
}

// Observer receives lifecycle callbacks from the dispatcher. Implementations
// must be safe for concurrent use.
type Observer interface {
	// DispatchStarted is called after signing and before the lease is taken.
	// The returned context replaces the dispatch context; the returned
	// function is called exactly once with the final status and error.
	DispatchStarted(ctx context.Context, info DispatchInfo) (context.Context, func(status int, err error))

	// BytesTransferred reports payload bytes moved by upload or download
	BytesTransferred(mode Mode, n int64)

	// StreamOpened and StreamReleased bracket the life of a stream or duplex handle
	StreamOpened(mode Mode)
	StreamReleased(mode Mode)

	// VersionNegotiated reports the outcome of the version query
	VersionNegotiated(version string, fallback bool)
}

type noopObserver struct{}

func (noopObserver) DispatchStarted(ctx context.Context, _ DispatchInfo) (context.Context, func(int, error)) {
	return ctx, func(int, error) {}
}
func (noopObserver) BytesTransferred(Mode, int64)   {}
func (noopObserver) StreamOpened(Mode)              {}
func (noopObserver) StreamReleased(Mode)            {}
func (noopObserver) VersionNegotiated(string, bool) {}

// MultiObserver fans callbacks out to several observers
type MultiObserver []Observer

// DispatchStarted implements Observer
func (m MultiObserver) DispatchStarted(ctx context.Context, info DispatchInfo) (context.Context, func(int, error)) {
	finishers := make([]func(int, error), 0, len(m))
	for _, o := range m {
		var finish func(int, error)
		ctx, finish = o.DispatchStarted(ctx, info)
		finishers = append(finishers, finish)
	}
	return ctx, func(status int, err error) {
		for i := len(finishers) - 1; i >= 0; i-- {
			finishers[i](status, err)
		}
	}
}

// BytesTransferred implements Observer
func (m MultiObserver) BytesTransferred(mode Mode, n int64) {
	for _, o := range m {
		o.BytesTransferred(mode, n)
	}
}

// StreamOpened implements Observer
func (m MultiObserver) StreamOpened(mode Mode) {
	for _, o := range m {
		o.StreamOpened(mode)
	}
}

// StreamReleased implements Observer
func (m MultiObserver) StreamReleased(mode Mode) {
	for _, o := range m {
		o.StreamReleased(mode)
	}
}

// VersionNegotiated implements Observer
func (m MultiObserver) VersionNegotiated(version string, fallback bool) {
	for _, o := range m {
		o.VersionNegotiated(version, fallback)
	}
}

// StatsObserver keeps in-process dispatch statistics. It needs no metrics
// backend and is always installed by the dispatcher.
type StatsObserver struct {
	mu sync.RWMutex

	total     map[Mode]*atomic.Int64
	success   map[Mode]*atomic.Int64
	errors    map[Mode]*atomic.Int64
	bytes     map[Mode]*atomic.Int64
	open      map[Mode]*atomic.Int64
	durations map[Mode]*durationTracker

	negotiations atomic.Int64
	fallbacks    atomic.Int64
}

// NewStatsObserver creates an empty statistics collector
func NewStatsObserver() *StatsObserver {
	return &StatsObserver{
		total:     make(map[Mode]*atomic.Int64),
		success:   make(map[Mode]*atomic.Int64),
		errors:    make(map[Mode]*atomic.Int64),
		bytes:     make(map[Mode]*atomic.Int64),
		open:      make(map[Mode]*atomic.Int64),
		durations: make(map[Mode]*durationTracker),
	}
}

// DispatchStarted implements Observer
func (s *StatsObserver) DispatchStarted(ctx context.Context, info DispatchInfo) (context.Context, func(int, error)) {
	start := time.Now()
	s.counter(s.total, info.Mode).Add(1)
	return ctx, func(_ int, err error) {
		if err != nil {
			s.counter(s.errors, info.Mode).Add(1)
		} else {
			s.counter(s.success, info.Mode).Add(1)
		}
		s.tracker(info.Mode).observe(time.Since(start))
	}
}

// BytesTransferred implements Observer
func (s *StatsObserver) BytesTransferred(mode Mode, n int64) {
	s.counter(s.bytes, mode).Add(n)
}

// StreamOpened implements Observer
func (s *StatsObserver) StreamOpened(mode Mode) {
	s.counter(s.open, mode).Add(1)
}

// StreamReleased implements Observer
func (s *StatsObserver) StreamReleased(mode Mode) {
	s.counter(s.open, mode).Add(-1)
}

// VersionNegotiated implements Observer
func (s *StatsObserver) VersionNegotiated(_ string, fallback bool) {
	s.negotiations.Add(1)
	if fallback {
		s.fallbacks.Add(1)
	}
}

// counter gets or creates an atomic counter for a mode
func (s *StatsObserver) counter(counters map[Mode]*atomic.Int64, mode Mode) *atomic.Int64 {
	s.mu.RLock()
	if counter, exists := counters[mode]; exists {
		s.mu.RUnlock()
		return counter
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring write lock
	if counter, exists := counters[mode]; exists {
		return counter
	}

	counter := &atomic.Int64{}
	counters[mode] = counter
	return counter
}

func (s *StatsObserver) tracker(mode Mode) *durationTracker {
	s.mu.RLock()
	if tracker, exists := s.durations[mode]; exists {
		s.mu.RUnlock()
		return tracker
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if tracker, exists := s.durations[mode]; exists {
		return tracker
	}

	tracker := &durationTracker{}
	s.durations[mode] = tracker
	return tracker
}

// durationTracker tracks duration statistics
type durationTracker struct {
	count   atomic.Int64
	totalNs atomic.Int64
	minNs   atomic.Int64
	maxNs   atomic.Int64
	mu      sync.Mutex
}

func (dt *durationTracker) observe(duration time.Duration) {
	nanos := duration.Nanoseconds()

	dt.count.Add(1)
	dt.totalNs.Add(nanos)

	dt.mu.Lock()
	if current := dt.minNs.Load(); current == 0 || nanos < current {
		dt.minNs.Store(nanos)
	}
	if current := dt.maxNs.Load(); nanos > current {
		dt.maxNs.Store(nanos)
	}
	dt.mu.Unlock()
}

func (dt *durationTracker) stats() DurationMetrics {
	c := dt.count.Load()
	if c == 0 {
		return DurationMetrics{}
	}

	totalNs := dt.totalNs.Load()
	return DurationMetrics{
		Count: c,
		Total: time.Duration(totalNs),
		Min:   time.Duration(dt.minNs.Load()),
		Max:   time.Duration(dt.maxNs.Load()),
		Avg:   time.Duration(totalNs / c),
	}
}

// StatsSnapshot is a point-in-time view of dispatch statistics
type StatsSnapshot struct {
	Modes        map[Mode]ModeMetrics `json:"modes"`
	Negotiations int64                `json:"negotiations"`
	Fallbacks    int64                `json:"fallbacks"`
}

// ModeMetrics represents metrics for one dispatch mode
type ModeMetrics struct {
	Total       int64           `json:"total"`
	Success     int64           `json:"success"`
	Errors      int64           `json:"errors"`
	Bytes       int64           `json:"bytes"`
	OpenStreams int64           `json:"open_streams"`
	Duration    DurationMetrics `json:"duration"`
}

// DurationMetrics represents duration statistics
type DurationMetrics struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot returns the current statistics
func (s *StatsObserver) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Modes:        make(map[Mode]ModeMetrics),
		Negotiations: s.negotiations.Load(),
		Fallbacks:    s.fallbacks.Load(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	load := func(m map[Mode]*atomic.Int64, mode Mode) int64 {
		if c, ok := m[mode]; ok {
			return c.Load()
		}
		return 0
	}
	for _, mode := range []Mode{ModeFetch, ModeUpload, ModeDownload, ModeEvents, ModeDuplex} {
		mm := ModeMetrics{
			Total:       load(s.total, mode),
			Success:     load(s.success, mode),
			Errors:      load(s.errors, mode),
			Bytes:       load(s.bytes, mode),
			OpenStreams: load(s.open, mode),
		}
		if tr, ok := s.durations[mode]; ok {
			mm.Duration = tr.stats()
		}
		if mm != (ModeMetrics{}) {
			snap.Modes[mode] = mm
		}
	}
	return snap
}
