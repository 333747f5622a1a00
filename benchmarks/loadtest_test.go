package benchmarks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTesterRequestBudget(t *testing.T) {
	srv := newManager(t)
	s := newSession(t, srv.URL)

	lt := NewLoadTester(s, LoadTestConfig{
		Workers:           4,
		RequestsPerWorker: 10,
		Folder:            "bench",
		UploadSize:        1024,
	})
	result, err := lt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(40), result.TotalRequests)
	assert.Equal(t, int64(40), result.SuccessfulRequests)
	assert.Zero(t, result.FailedRequests)
	assert.Empty(t, result.ErrorCounts)
	assert.LessOrEqual(t, result.MinLatency, result.P50Latency)
	assert.LessOrEqual(t, result.P50Latency, result.P99Latency)
	assert.LessOrEqual(t, result.P99Latency, result.MaxLatency)

	var counted int64
	for _, m := range result.OperationMetrics {
		counted += m.Count
	}
	assert.Equal(t, int64(40), counted)
	assert.Zero(t, s.Dispatcher().Pool().InUse())
}

func TestLoadTesterWithoutFolderSkipsUploads(t *testing.T) {
	srv := newManager(t)
	s := newSession(t, srv.URL)

	lt := NewLoadTester(s, LoadTestConfig{
		Workers:           2,
		RequestsPerWorker: 5,
		OperationMix:      OperationMix{Upload: 100, ListFolders: 1},
	})
	result, err := lt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10), result.TotalRequests)
	assert.NotContains(t, result.OperationMetrics, OpUpload)
}

func TestLoadTesterStopsAtDuration(t *testing.T) {
	srv := newManager(t)
	s := newSession(t, srv.URL)

	lt := NewLoadTester(s, LoadTestConfig{
		Workers:   2,
		RateLimit: 50,
		Duration:  200 * time.Millisecond,
	})
	start := time.Now()
	result, err := lt.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Positive(t, result.TotalRequests)
	assert.Zero(t, result.FailedRequests)
}

func TestPercentileDuration(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentileDuration(sorted, 50))
	assert.Equal(t, time.Duration(10), percentileDuration(sorted, 99))
	assert.Equal(t, time.Duration(1), percentileDuration(sorted, 0))
}
