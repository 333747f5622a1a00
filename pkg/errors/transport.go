package errors

import (
	"fmt"
	"net/url"
	"time"
)

// TransportErrorData contains structured data for transport-related errors
type TransportErrorData struct {
	Transport    string        `json:"transport"`
	Operation    string        `json:"operation,omitempty"`
	Endpoint     string        `json:"endpoint,omitempty"`
	Connected    bool          `json:"connected"`
	Retryable    bool          `json:"retryable"`
	Reason       string        `json:"reason,omitempty"`
	StatusCode   int           `json:"status_code,omitempty"`
	ResponseTime time.Duration `json:"response_time,omitempty"`
}

// ConnectionErrorData contains structured data for connection-related errors
type ConnectionErrorData struct {
	Transport string        `json:"transport"`
	Endpoint  string        `json:"endpoint,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Retryable bool          `json:"retryable"`
	Reason    string        `json:"reason,omitempty"`
}

func reasonOf(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

func hostOf(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}

// TransportError creates a generic transport error
func TransportError(transport, operation string, cause error) ClientError {
	message := fmt.Sprintf("%s transport error", transport)
	if operation != "" {
		message = fmt.Sprintf("%s transport error during %s", transport, operation)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return Wrap(cause, CodeTransportError, message).WithData(&TransportErrorData{
		Transport: transport,
		Operation: operation,
		Connected: false,
		Retryable: true,
		Reason:    reasonOf(cause),
	})
}

// ConnectionFailed creates an error for connection failures
func ConnectionFailed(transport, endpoint string, cause error) ClientError {
	message := fmt.Sprintf("Failed to connect via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("Failed to connect to %s via %s", endpoint, transport)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return Wrap(cause, CodeConnectionFailed, message).WithData(&ConnectionErrorData{
		Transport: transport,
		Endpoint:  hostOf(endpoint),
		Retryable: true,
		Reason:    reasonOf(cause),
	})
}

// ConnectionLost creates an error for connections dropped mid-transfer
func ConnectionLost(transport, endpoint string, cause error) ClientError {
	message := fmt.Sprintf("Lost connection via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("Lost connection to %s via %s", endpoint, transport)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return Wrap(cause, CodeConnectionLost, message).WithData(&ConnectionErrorData{
		Transport: transport,
		Endpoint:  hostOf(endpoint),
		Retryable: true,
		Reason:    reasonOf(cause),
	})
}

// ConnectionTimeout creates an error for connection timeouts
func ConnectionTimeout(transport, endpoint string, timeout time.Duration) ClientError {
	message := fmt.Sprintf("Connection timeout via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("Connection timeout to %s via %s", endpoint, transport)
	}
	if timeout > 0 {
		message = fmt.Sprintf("%s after %v", message, timeout)
	}

	return New(CodeConnectionTimeout, message).WithData(&ConnectionErrorData{
		Transport: transport,
		Endpoint:  hostOf(endpoint),
		Timeout:   timeout,
		Retryable: true,
		Reason:    "timeout",
	})
}

// EventSourceError creates an error for Server-Sent Events issues
func EventSourceError(endpoint, reason string, cause error) ClientError {
	message := fmt.Sprintf("Event source error: %s", reason)
	if endpoint != "" {
		message = fmt.Sprintf("Event source error for %s: %s", endpoint, reason)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return Wrap(cause, CodeEventSourceError, message).WithData(&TransportErrorData{
		Transport: "sse",
		Operation: "event_stream",
		Endpoint:  endpoint,
		Connected: false,
		Retryable: true,
		Reason:    reason,
	})
}

// DuplexError creates an error for WebSocket send/receive failures
func DuplexError(endpoint, operation string, cause error) ClientError {
	message := fmt.Sprintf("WebSocket error during %s", operation)
	if endpoint != "" {
		message = fmt.Sprintf("WebSocket error during %s on %s", operation, endpoint)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return Wrap(cause, CodeDuplexError, message).WithData(&TransportErrorData{
		Transport: "websocket",
		Operation: operation,
		Endpoint:  endpoint,
		Connected: true,
		Retryable: false,
		Reason:    reasonOf(cause),
	})
}

// StreamClosed creates an error for reads on a closed stream or duplex handle.
// The result matches ErrStreamClosed under errors.Is.
func StreamClosed(kind string) ClientError {
	return Wrap(ErrStreamClosed, CodeStreamClosed, fmt.Sprintf("%s handle is closed", kind)).WithData(&TransportErrorData{
		Transport: kind,
		Operation: "receive",
		Connected: false,
		Retryable: false,
		Reason:    "closed",
	})
}
