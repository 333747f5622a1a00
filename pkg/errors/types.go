// Package errors provides structured error handling for the Backend.AI client.
// Every failure surfaced by the transport layer is a ClientError carrying a
// numeric code, a category for coarse classification and optional structured
// data (for example the status, reason and body of a rejected API call).
//
// Category and severity are properties of the code and are looked up in the
// code registry, so constructors only name the code.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// Category groups error codes for coarse handling
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryAuth       Category = "auth"
	CategoryTransport  Category = "transport"
	CategoryAPI        Category = "api"
	CategoryInternal   Category = "internal"
	CategoryTimeout    Category = "timeout"
	CategoryCancelled  Category = "cancelled"
	CategoryProtocol   Category = "protocol"
)

// Severity indicates how critical an error is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context identifies the dispatch an error came from. The dispatcher stamps
// it on every error it returns.
type Context struct {
	RequestID string    `json:"request_id,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Method    string    `json:"method,omitempty"`
	Path      string    `json:"path,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// merge fills the empty fields of c from other
func (c Context) merge(other *Context) *Context {
	if other == nil {
		return &c
	}
	if c.RequestID == "" {
		c.RequestID = other.RequestID
	}
	if c.Mode == "" {
		c.Mode = other.Mode
	}
	if c.Method == "" {
		c.Method = other.Method
	}
	if c.Path == "" {
		c.Path = other.Path
	}
	if c.Operation == "" {
		c.Operation = other.Operation
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = other.Timestamp
	}
	return &c
}

// ClientError is implemented by every error the SDK returns
type ClientError interface {
	error

	Code() int
	// Message is the summary without details
	Message() string
	Details() string
	// Data is the code-specific payload, such as *APIErrorData
	Data() interface{}
	Category() Category
	Severity() Severity
	// Context is nil until the error passes through a dispatcher
	Context() *Context

	// WithContext merges ctx over the current context. Fields already set
	// on ctx win.
	WithContext(ctx *Context) ClientError
	WithDetail(detail string) ClientError
	WithData(data interface{}) ClientError

	Unwrap() error
}

type clientError struct {
	code    int
	message string
	details string
	data    interface{}
	context *Context
	cause   error
}

// New creates a ClientError for a registered code
func New(code int, message string) ClientError {
	return &clientError{code: code, message: message}
}

// Wrap creates a ClientError for a registered code with cause as its
// underlying error
func Wrap(cause error, code int, message string) ClientError {
	return &clientError{code: code, message: message, cause: cause}
}

func (e *clientError) Error() string {
	if e.details != "" {
		return e.message + ": " + e.details
	}
	return e.message
}

func (e *clientError) Code() int          { return e.code }
func (e *clientError) Message() string    { return e.message }
func (e *clientError) Details() string    { return e.details }
func (e *clientError) Data() interface{}  { return e.data }
func (e *clientError) Context() *Context  { return e.context }
func (e *clientError) Unwrap() error      { return e.cause }
func (e *clientError) Category() Category { return e.info().Category }
func (e *clientError) Severity() Severity { return e.info().Severity }

func (e *clientError) info() ErrorCodeInfo {
	if info, ok := errorCodeRegistry[e.code]; ok {
		return info
	}
	return errorCodeRegistry[CodeInternalError]
}

func (e *clientError) WithContext(ctx *Context) ClientError {
	out := *e
	if ctx != nil {
		out.context = ctx.merge(e.context)
	}
	return &out
}

func (e *clientError) WithDetail(detail string) ClientError {
	out := *e
	if out.details != "" {
		out.details = fmt.Sprintf("%s; %s", out.details, detail)
	} else {
		out.details = detail
	}
	return &out
}

func (e *clientError) WithData(data interface{}) ClientError {
	out := *e
	out.data = data
	return &out
}

// MarshalJSON renders the error with its code name, for logs and API replies
func (e *clientError) MarshalJSON() ([]byte, error) {
	info := e.info()
	wire := struct {
		Code     int         `json:"code"`
		Name     string      `json:"name"`
		Message  string      `json:"message"`
		Details  string      `json:"details,omitempty"`
		Category Category    `json:"category"`
		Severity Severity    `json:"severity"`
		Data     interface{} `json:"data,omitempty"`
		Context  *Context    `json:"context,omitempty"`
		Cause    string      `json:"cause,omitempty"`
	}{
		Code:     e.code,
		Name:     GetErrorCodeName(e.code),
		Message:  e.message,
		Details:  e.details,
		Category: info.Category,
		Severity: info.Severity,
		Data:     e.data,
		Context:  e.context,
	}
	if e.cause != nil {
		wire.Cause = e.cause.Error()
	}
	return json.Marshal(wire)
}

// AsClientError returns the first ClientError in err's chain
func AsClientError(err error) (ClientError, bool) {
	var clientErr ClientError
	if err != nil && stderrors.As(err, &clientErr) {
		return clientErr, true
	}
	return nil, false
}

// IsCategory reports whether err carries a ClientError of category
func IsCategory(err error, category Category) bool {
	clientErr, ok := AsClientError(err)
	return ok && clientErr.Category() == category
}

// IsCode reports whether err carries a ClientError with code
func IsCode(err error, code int) bool {
	clientErr, ok := AsClientError(err)
	return ok && clientErr.Code() == code
}
