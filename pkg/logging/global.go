package logging

import (
	"io"
	"sync/atomic"
)

var global atomic.Pointer[Logger]

func init() {
	SetGlobalLogger(New(nil, nil))
}

// SetGlobalLogger replaces the logger used by dispatchers and negotiators
// created without one. A nil logger discards everything.
func SetGlobalLogger(logger Logger) {
	if logger == nil {
		logger = Discard()
	}
	global.Store(&logger)
}

// GetGlobalLogger returns the process-wide default logger
func GetGlobalLogger() Logger {
	return *global.Load()
}

// Discard returns a logger that drops every entry
func Discard() Logger {
	l := New(io.Discard, NewTextFormatter())
	l.SetLevel(offLevel)
	return l
}
