package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const redacted = "[REDACTED]"

// sensitiveKeys are field names whose values never reach the log output
var sensitiveKeys = map[string]bool{
	"authorization": true,
	"secret_key":    true,
	"signature":     true,
}

// fieldValue returns the value to render for f. Errors render as their
// message and durations in their string form.
func fieldValue(f Field) interface{} {
	if sensitiveKeys[strings.ToLower(f.Key)] {
		return redacted
	}
	switch v := f.Value.(type) {
	case error:
		return v.Error()
	case time.Duration:
		return v.String()
	default:
		return v
	}
}

// TextFormatter renders one line per entry:
//
//	2024-05-01T12:00:00.000Z INFO [req-1] dispatcher/fetch: message key=value
type TextFormatter struct {
	// TimestampFormat defaults to RFC 3339 with milliseconds
	TimestampFormat  string
	DisableTimestamp bool
}

// NewTextFormatter creates a text formatter with the default timestamp
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
}

// Format renders entry as text
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	if !f.DisableTimestamp {
		buf.WriteString(entry.Time.UTC().Format(f.TimestampFormat))
		buf.WriteByte(' ')
	}
	fmt.Fprintf(&buf, "%-5s ", entry.Level)
	if entry.RequestID != "" {
		buf.WriteString("[" + entry.RequestID + "] ")
	}
	switch {
	case entry.Component != "" && entry.Mode != "":
		buf.WriteString(entry.Component + "/" + entry.Mode + ": ")
	case entry.Component != "":
		buf.WriteString(entry.Component + ": ")
	case entry.Mode != "":
		buf.WriteString(entry.Mode + ": ")
	}
	buf.WriteString(entry.Message)

	for _, field := range entry.Fields {
		buf.WriteByte(' ')
		buf.WriteString(field.Key)
		buf.WriteByte('=')
		buf.WriteString(textValue(fieldValue(field)))
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func textValue(v interface{}) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case nil:
		return "<nil>"
	default:
		s = fmt.Sprint(val)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// JSONFormatter renders one JSON object per line. The header keys come
// first, then the fields in order.
type JSONFormatter struct {
	// TimestampFormat defaults to RFC 3339 with milliseconds
	TimestampFormat  string
	DisableTimestamp bool
}

// NewJSONFormatter creates a JSON formatter with the default timestamp
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
}

// Format renders entry as a JSON object
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value interface{}) error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal log field %q: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(data)
		return nil
	}

	header := []Field{{"level", entry.Level.String()}, {"message", entry.Message}}
	if !f.DisableTimestamp {
		header = append([]Field{{"timestamp", entry.Time.UTC().Format(f.TimestampFormat)}}, header...)
	}
	if entry.RequestID != "" {
		header = append(header, Field{keyRequestID, entry.RequestID})
	}
	if entry.Component != "" {
		header = append(header, Field{keyComponent, entry.Component})
	}
	if entry.Mode != "" {
		header = append(header, Field{keyMode, entry.Mode})
	}
	for _, field := range header {
		if err := write(field.Key, field.Value); err != nil {
			return nil, err
		}
	}
	for _, field := range entry.Fields {
		if err := write(field.Key, fieldValue(field)); err != nil {
			return nil, err
		}
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}
