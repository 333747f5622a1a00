// Package logging provides structured logging for the Backend.AI client.
// Entries carry the request ID and dispatch mode of the call that produced
// them, and client errors contribute their code and request context.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
)

// Level represents the severity of a log message
type Level int32

const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel

	// offLevel is above every level a message can have
	offLevel
)

// String returns the upper-case level name
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case offLevel:
		return "OFF"
	default:
		return "LEVEL(" + strconv.Itoa(int(l)) + ")"
	}
}

// ParseLevel converts a BACKEND_LOG_LEVEL value such as "debug" or "WARN"
// to a Level. An empty name means info.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "off", "none":
		return offLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Field is one key-value pair of a log entry
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors

func String(key, value string) Field             { return Field{key, value} }
func Int(key string, value int) Field            { return Field{key, value} }
func Int64(key string, value int64) Field        { return Field{key, value} }
func Bool(key string, value bool) Field          { return Field{key, value} }
func Duration(key string, d time.Duration) Field { return Field{key, d} }
func Any(key string, value interface{}) Field    { return Field{key, value} }

// ErrorField records err under the "error" key
func ErrorField(err error) Field { return Field{"error", err} }

// Keys lifted out of the field list into Entry
const (
	keyRequestID = "request_id"
	keyMode      = "mode"
	keyComponent = "component"
)

// Logger is the structured logger used across the client
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithFields returns a child logger that adds fields to every entry.
	// Children share their parent's output and level.
	WithFields(fields ...Field) Logger
	// WithContext adds the request ID carried by ctx
	WithContext(ctx context.Context) Logger
	// WithError adds err and, for client errors, its code and request context
	WithError(err error) Logger

	SetLevel(level Level)
	Level() Level
}

// Entry is one formatted log record. Fields keep the order they were added
// in; a later field replaces an earlier one with the same key.
type Entry struct {
	Time      time.Time
	Level     Level
	Message   string
	RequestID string
	Mode      string
	Component string
	Fields    []Field
}

// Formatter renders entries
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// sink is the output shared by a logger and all of its children
type sink struct {
	mu        sync.Mutex
	out       io.Writer
	formatter Formatter
	level     atomic.Int32
}

type logger struct {
	sink   *sink
	fields []Field
}

// New creates a logger writing to output at info level. A nil output means
// stderr and a nil formatter means text.
func New(output io.Writer, formatter Formatter) Logger {
	if output == nil {
		output = os.Stderr
	}
	if formatter == nil {
		formatter = NewTextFormatter()
	}
	s := &sink{out: output, formatter: formatter}
	s.level.Store(int32(InfoLevel))
	return &logger{sink: s}
}

func (l *logger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *logger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *logger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *logger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *logger) SetLevel(level Level) { l.sink.level.Store(int32(level)) }
func (l *logger) Level() Level         { return Level(l.sink.level.Load()) }

func (l *logger) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &logger{sink: l.sink, fields: merged}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return l.WithFields(String(keyRequestID, id))
	}
	return l
}

func (l *logger) WithError(err error) Logger {
	fields := []Field{ErrorField(err)}
	if clientErr, ok := clienterrors.AsClientError(err); ok {
		fields = append(fields,
			String("error_code", clienterrors.GetErrorCodeName(clientErr.Code())),
			String("error_category", string(clientErr.Category())),
		)
		if ctx := clientErr.Context(); ctx != nil {
			if ctx.RequestID != "" {
				fields = append(fields, String(keyRequestID, ctx.RequestID))
			}
			if ctx.Mode != "" {
				fields = append(fields, String(keyMode, ctx.Mode))
			}
			if ctx.Path != "" {
				fields = append(fields, String("path", ctx.Method+" "+ctx.Path))
			}
		}
	}
	return l.WithFields(fields...)
}

func (l *logger) log(level Level, msg string, fields []Field) {
	if level < l.Level() {
		return
	}

	entry := &Entry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Fields:  make([]Field, 0, len(l.fields)+len(fields)),
	}
	index := make(map[string]int, len(l.fields)+len(fields))
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			switch f.Key {
			case keyRequestID:
				entry.RequestID = fmt.Sprint(f.Value)
				continue
			case keyMode:
				entry.Mode = fmt.Sprint(f.Value)
				continue
			case keyComponent:
				entry.Component = fmt.Sprint(f.Value)
				continue
			}
			if i, ok := index[f.Key]; ok {
				entry.Fields[i] = f
				continue
			}
			index[f.Key] = len(entry.Fields)
			entry.Fields = append(entry.Fields, f)
		}
	}

	data, err := l.sink.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: format entry: %v\n", err)
		return
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if _, err := l.sink.out.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "logging: write entry: %v\n", err)
	}
}

type contextKey struct{}

// ContextWithRequestID returns a context carrying requestID
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// RequestIDFromContext returns the request ID carried by ctx, or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
