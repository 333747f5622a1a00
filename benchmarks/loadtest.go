// Package benchmarks provides performance and load testing for the Backend.AI client
package benchmarks

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/client"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
)

// Operation names recorded by the load tester
const (
	OpGetVersions = "GetVersions"
	OpListFolders = "ListFolders"
	OpUpload      = "Upload"
)

// LoadTestConfig configures load testing parameters
type LoadTestConfig struct {
	// Number of concurrent workers sharing the session
	Workers int

	// Number of requests per worker
	RequestsPerWorker int

	// Request rate limit (requests per second, 0 = unlimited)
	RateLimit int

	// Test duration (0 = run until all requests complete)
	Duration time.Duration

	// Ramp up period for gradual load increase
	RampUpTime time.Duration

	// Mix of operations to perform
	OperationMix OperationMix

	// Folder that receives uploads
	Folder string

	// Size of the file sent by each upload
	UploadSize int64

	// Reporting interval
	ReportInterval time.Duration

	Logger logging.Logger
}

// OperationMix defines the distribution of different operations
type OperationMix struct {
	GetVersions float64
	ListFolders float64
	Upload      float64
}

// LoadTestResult contains the results of a load test
type LoadTestResult struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalDuration      time.Duration

	// Latency statistics (in milliseconds)
	MinLatency float64
	MaxLatency float64
	AvgLatency float64
	P50Latency float64
	P90Latency float64
	P95Latency float64
	P99Latency float64

	RequestsPerSecond float64

	ErrorCounts map[string]int64

	OperationMetrics map[string]*OperationMetrics
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count      int64
	Successful int64
	Failed     int64
	TotalTime  time.Duration
	MinTime    time.Duration
	MaxTime    time.Duration

	mu        sync.Mutex
	latencies []time.Duration
}

// LoadTester drives a mix of dispatches through one session
type LoadTester struct {
	config  LoadTestConfig
	session *client.Session
	upload  string

	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64

	errMu       sync.Mutex
	errorCounts map[string]int64

	operationMetrics sync.Map

	startTime time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewLoadTester creates a load tester for session
func NewLoadTester(session *client.Session, config LoadTestConfig) *LoadTester {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.ReportInterval == 0 {
		config.ReportInterval = 5 * time.Second
	}
	if config.UploadSize <= 0 {
		config.UploadSize = 64 * 1024
	}
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}

	total := config.OperationMix.GetVersions + config.OperationMix.ListFolders + config.OperationMix.Upload
	if total == 0 {
		config.OperationMix = OperationMix{
			GetVersions: 20,
			ListFolders: 60,
			Upload:      20,
		}
		total = 100
	}
	if config.Folder == "" {
		config.OperationMix.Upload = 0
		total = config.OperationMix.GetVersions + config.OperationMix.ListFolders
	}

	config.OperationMix.GetVersions /= total
	config.OperationMix.ListFolders /= total
	config.OperationMix.Upload /= total

	return &LoadTester{
		config:      config,
		session:     session,
		errorCounts: make(map[string]int64),
		stopCh:      make(chan struct{}),
	}
}

// Run executes the load test
func (lt *LoadTester) Run(ctx context.Context) (*LoadTestResult, error) {
	if lt.config.OperationMix.Upload > 0 {
		path, cleanup, err := writeUploadFile(lt.config.UploadSize)
		if err != nil {
			return nil, fmt.Errorf("prepare upload file: %w", err)
		}
		defer cleanup()
		lt.upload = path
	}

	lt.startTime = time.Now()
	go lt.reportProgress()
	defer lt.stop()

	rateLimiter := lt.createRateLimiter()

	if lt.config.Duration > 0 {
		timer := time.AfterFunc(lt.config.Duration, lt.stop)
		defer timer.Stop()
	}

	var g errgroup.Group
	for i := 0; i < lt.config.Workers; i++ {
		g.Go(func() error {
			lt.runWorker(ctx, rateLimiter)
			return nil
		})

		if lt.config.RampUpTime > 0 && i < lt.config.Workers-1 {
			select {
			case <-time.After(lt.config.RampUpTime / time.Duration(lt.config.Workers-1)):
			case <-ctx.Done():
			case <-lt.stopCh:
			}
		}
	}
	_ = g.Wait()

	return lt.calculateResults(), nil
}

func (lt *LoadTester) stop() {
	lt.stopOnce.Do(func() { close(lt.stopCh) })
}

// runWorker runs one worker's share of the workload
func (lt *LoadTester) runWorker(ctx context.Context, rateLimiter <-chan struct{}) {
	for requests := 0; lt.config.RequestsPerWorker <= 0 || requests < lt.config.RequestsPerWorker; requests++ {
		if rateLimiter != nil {
			select {
			case <-rateLimiter:
			case <-lt.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-lt.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		lt.executeOperation(ctx, lt.selectOperation())
	}
}

// selectOperation chooses an operation based on the configured mix
func (lt *LoadTester) selectOperation() string {
	r := rand.Float64()
	mix := lt.config.OperationMix

	switch {
	case r < mix.GetVersions:
		return OpGetVersions
	case r < mix.GetVersions+mix.ListFolders:
		return OpListFolders
	case mix.Upload > 0:
		return OpUpload
	default:
		return OpListFolders
	}
}

// executeOperation performs a single operation and records metrics
func (lt *LoadTester) executeOperation(ctx context.Context, operation string) {
	start := time.Now()
	var err error

	lt.totalRequests.Add(1)

	switch operation {
	case OpGetVersions:
		_, err = lt.session.System().GetVersions(ctx)
	case OpListFolders:
		_, err = lt.session.VFolders().List(ctx, false)
	case OpUpload:
		_, err = lt.session.VFolder(lt.config.Folder).Upload(ctx, []string{lt.upload}, filepath.Dir(lt.upload), nil)
	}

	lt.getOperationMetrics(operation).recordOperation(time.Since(start), err)

	if err != nil {
		lt.failedRequests.Add(1)
		lt.recordError(err)
	} else {
		lt.successfulRequests.Add(1)
	}
}

func (lt *LoadTester) getOperationMetrics(operation string) *OperationMetrics {
	v, _ := lt.operationMetrics.LoadOrStore(operation, &OperationMetrics{})
	metrics, _ := v.(*OperationMetrics)
	return metrics
}

func (m *OperationMetrics) recordOperation(duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Count++
	m.TotalTime += duration

	if err != nil {
		m.Failed++
	} else {
		m.Successful++
	}

	if m.MinTime == 0 || duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	m.latencies = append(m.latencies, duration)
}

func (lt *LoadTester) recordError(err error) {
	lt.errMu.Lock()
	lt.errorCounts[err.Error()]++
	lt.errMu.Unlock()
}

// createRateLimiter returns a channel that ticks RateLimit times per second,
// or nil when unlimited
func (lt *LoadTester) createRateLimiter() <-chan struct{} {
	if lt.config.RateLimit <= 0 {
		return nil
	}

	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(lt.config.RateLimit))
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				select {
				case ch <- struct{}{}:
				case <-lt.stopCh:
					return
				}
			case <-lt.stopCh:
				return
			}
		}
	}()

	return ch
}

// reportProgress periodically logs test progress
func (lt *LoadTester) reportProgress() {
	ticker := time.NewTicker(lt.config.ReportInterval)
	defer ticker.Stop()

	lastRequests := int64(0)
	lastTime := time.Now()

	for {
		select {
		case <-ticker.C:
			currentRequests := lt.totalRequests.Load()
			currentTime := time.Now()
			rps := float64(currentRequests-lastRequests) / currentTime.Sub(lastTime).Seconds()

			lt.config.Logger.Info("Load test progress",
				logging.Int64("requests", currentRequests),
				logging.Any("rps", math.Round(rps*10)/10),
				logging.Int64("successful", lt.successfulRequests.Load()),
				logging.Int64("failed", lt.failedRequests.Load()),
				logging.Int("in_use", lt.session.Dispatcher().Pool().InUse()),
			)

			lastRequests = currentRequests
			lastTime = currentTime

		case <-lt.stopCh:
			return
		}
	}
}

// calculateResults computes the final test results
func (lt *LoadTester) calculateResults() *LoadTestResult {
	duration := time.Since(lt.startTime)

	result := &LoadTestResult{
		TotalRequests:      lt.totalRequests.Load(),
		SuccessfulRequests: lt.successfulRequests.Load(),
		FailedRequests:     lt.failedRequests.Load(),
		TotalDuration:      duration,
		RequestsPerSecond:  float64(lt.totalRequests.Load()) / duration.Seconds(),
		ErrorCounts:        make(map[string]int64),
		OperationMetrics:   make(map[string]*OperationMetrics),
	}

	lt.errMu.Lock()
	for msg, count := range lt.errorCounts {
		result.ErrorCounts[msg] = count
	}
	lt.errMu.Unlock()

	var allLatencies []time.Duration
	lt.operationMetrics.Range(func(key, value interface{}) bool {
		opName, _ := key.(string)
		metrics, _ := value.(*OperationMetrics)

		result.OperationMetrics[opName] = metrics
		metrics.mu.Lock()
		allLatencies = append(allLatencies, metrics.latencies...)
		metrics.mu.Unlock()
		return true
	})

	if len(allLatencies) > 0 {
		slices.Sort(allLatencies)
		result.MinLatency = milliseconds(allLatencies[0])
		result.MaxLatency = milliseconds(allLatencies[len(allLatencies)-1])
		result.AvgLatency = milliseconds(avgDuration(allLatencies))
		result.P50Latency = milliseconds(percentileDuration(allLatencies, 50))
		result.P90Latency = milliseconds(percentileDuration(allLatencies, 90))
		result.P95Latency = milliseconds(percentileDuration(allLatencies, 95))
		result.P99Latency = milliseconds(percentileDuration(allLatencies, 99))
	}

	return result
}

func writeUploadFile(size int64) (string, func(), error) {
	dir, err := os.MkdirTemp("", "backendai-loadtest-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(path, make([]byte, size), 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func avgDuration(durations []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return sum / time.Duration(len(durations))
}

func percentileDuration(sortedDurations []time.Duration, percentile float64) time.Duration {
	index := int(math.Ceil(float64(len(sortedDurations))*percentile/100.0)) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(sortedDurations) {
		index = len(sortedDurations) - 1
	}
	return sortedDurations[index]
}

// PrintResults prints load test results in a readable format
func (r *LoadTestResult) PrintResults() {
	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Total Duration: %s\n", r.TotalDuration)
	fmt.Printf("Total Requests: %d\n", r.TotalRequests)
	if r.TotalRequests > 0 {
		fmt.Printf("Successful: %d (%.1f%%)\n", r.SuccessfulRequests,
			float64(r.SuccessfulRequests)/float64(r.TotalRequests)*100)
		fmt.Printf("Failed: %d (%.1f%%)\n", r.FailedRequests,
			float64(r.FailedRequests)/float64(r.TotalRequests)*100)
	}
	fmt.Printf("Requests/sec: %.2f\n", r.RequestsPerSecond)

	fmt.Println("\nLatency Statistics (ms):")
	fmt.Printf("  Min: %.2f\n", r.MinLatency)
	fmt.Printf("  Avg: %.2f\n", r.AvgLatency)
	fmt.Printf("  P50: %.2f\n", r.P50Latency)
	fmt.Printf("  P90: %.2f\n", r.P90Latency)
	fmt.Printf("  P95: %.2f\n", r.P95Latency)
	fmt.Printf("  P99: %.2f\n", r.P99Latency)
	fmt.Printf("  Max: %.2f\n", r.MaxLatency)

	if len(r.OperationMetrics) > 0 {
		fmt.Println("\nOperation Breakdown:")
		for op, metrics := range r.OperationMetrics {
			fmt.Printf("  %s:\n", op)
			fmt.Printf("    Count: %d\n", metrics.Count)
			fmt.Printf("    Success Rate: %.1f%%\n",
				float64(metrics.Successful)/float64(metrics.Count)*100)
			fmt.Printf("    Avg Time: %.2fms\n",
				milliseconds(metrics.TotalTime)/float64(metrics.Count))
		}
	}

	if len(r.ErrorCounts) > 0 {
		fmt.Println("\nError Summary:")
		for err, count := range r.ErrorCounts {
			fmt.Printf("  %s: %d\n", err, count)
		}
	}
}
