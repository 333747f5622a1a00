// Package utils holds test support shared by the client packages.
package utils

import (
	"bytes"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Reporter is the subset of testing.TB the leak detector needs
type Reporter interface {
	Helper()
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// defaultIgnored are frames of goroutines owned by the runtime or the HTTP
// stack that outlive a test without being leaks of the code under test.
var defaultIgnored = []string{
	"net/http.(*persistConn).readLoop",
	"net/http.(*persistConn).writeLoop",
	"net/http/httptest.(*Server).goServe",
	"net/http.(*conn).serve",
	"internal/poll.runtime_pollWait",
	"runtime.goexit0",
	"testing.(*T).Run",
	"testing.tRunner",
}

// GoroutineLeakDetector reports goroutines started between Start and Check
// that are still running at Check. Handle lifecycle tests use it to prove a
// closed stream leaves nothing behind.
type GoroutineLeakDetector struct {
	t              Reporter
	initial        map[uint64]bool
	ignored        []string
	allowedGrowth  int
	checkInterval  time.Duration
	stabilizeDelay time.Duration
	attempts       int
}

// NewGoroutineLeakDetector creates a new goroutine leak detector
func NewGoroutineLeakDetector(t Reporter) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:              t,
		ignored:        append([]string(nil), defaultIgnored...),
		checkInterval:  100 * time.Millisecond,
		stabilizeDelay: 200 * time.Millisecond,
		attempts:       5,
	}
}

// Start records the goroutines alive now
func (d *GoroutineLeakDetector) Start() {
	time.Sleep(d.stabilizeDelay)
	d.initial = make(map[uint64]bool)
	for _, g := range goroutines() {
		d.initial[g.id] = true
	}
	d.t.Logf("Starting goroutine count: %d", len(d.initial))
}

// Check fails the test when goroutines started after Start are still alive.
// It retries a few times so goroutines that are already exiting can finish.
func (d *GoroutineLeakDetector) Check() {
	d.t.Helper()
	time.Sleep(d.stabilizeDelay)

	var leaked []goroutine
	for i := 0; i < d.attempts; i++ {
		leaked = d.leaked()
		if len(leaked) <= d.allowedGrowth {
			d.t.Logf("No goroutine leak: %d new goroutines (allowed: %d)", len(leaked), d.allowedGrowth)
			return
		}
		time.Sleep(d.checkInterval)
	}

	var stacks strings.Builder
	for _, g := range leaked {
		stacks.WriteString(g.stack)
		stacks.WriteString("\n\n")
	}
	d.t.Errorf("Goroutine leak detected: %d goroutines started during the test are still running (allowed: %d)\n%s",
		len(leaked), d.allowedGrowth, stacks.String())
}

// Ignore adds stack substrings whose goroutines are not counted
func (d *GoroutineLeakDetector) Ignore(frames ...string) *GoroutineLeakDetector {
	d.ignored = append(d.ignored, frames...)
	return d
}

// SetAllowedGrowth sets the number of goroutines allowed to grow
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetStabilizeDelay sets the delay to allow goroutines to stabilize
func (d *GoroutineLeakDetector) SetStabilizeDelay(delay time.Duration) *GoroutineLeakDetector {
	d.stabilizeDelay = delay
	return d
}

func (d *GoroutineLeakDetector) leaked() []goroutine {
	var out []goroutine
	for _, g := range goroutines() {
		if d.initial[g.id] || d.isIgnored(g.stack) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func (d *GoroutineLeakDetector) isIgnored(stack string) bool {
	for _, frame := range d.ignored {
		if strings.Contains(stack, frame) {
			return true
		}
	}
	return false
}

type goroutine struct {
	id    uint64
	stack string
}

// goroutines parses a full runtime.Stack dump, skipping the caller
func goroutines() []goroutine {
	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}

	var out []goroutine
	for i, block := range bytes.Split(buf, []byte("\n\n")) {
		if i == 0 {
			// The first block is the goroutine taking the dump.
			continue
		}
		header, _, _ := bytes.Cut(block, []byte("\n"))
		// "goroutine 42 [running]:"
		fields := strings.Fields(string(header))
		if len(fields) < 2 || fields[0] != "goroutine" {
			continue
		}
		id, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, goroutine{id: id, stack: string(block)})
	}
	return out
}
