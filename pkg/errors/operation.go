package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrStreamClosed is matched by every error returned from a closed handle
var ErrStreamClosed = stderrors.New("stream closed")

// OperationErrorData contains structured data for operation errors
type OperationErrorData struct {
	Operation string `json:"operation"`
	Component string `json:"component,omitempty"`
	Retryable bool   `json:"retryable"`
	Reason    string `json:"reason,omitempty"`
}

// Cancelled creates an error for an operation aborted by its caller. The cause
// is kept in the chain, so errors.Is(err, context.Canceled) holds when the
// cause came from a cancelled context.
func Cancelled(operation string, cause error) ClientError {
	if cause == nil {
		cause = context.Canceled
	}
	return Wrap(cause, CodeOperationCancelled, fmt.Sprintf("Operation '%s' was cancelled", operation)).WithData(&OperationErrorData{
		Operation: operation,
		Retryable: false,
		Reason:    reasonOf(cause),
	})
}

// OperationTimeout creates an error for operations that ran past their deadline
func OperationTimeout(operation string, timeout time.Duration, cause error) ClientError {
	message := fmt.Sprintf("Operation '%s' timed out", operation)
	if timeout > 0 {
		message = fmt.Sprintf("Operation '%s' timed out after %s", operation, timeout)
	}
	return Wrap(cause, CodeOperationTimeout, message).WithData(&OperationErrorData{
		Operation: operation,
		Retryable: true,
		Reason:    reasonOf(cause),
	})
}

// OperationFailed creates an error for failed operations
func OperationFailed(operation string, reason string) ClientError {
	return New(CodeOperationFailed, fmt.Sprintf("Operation '%s' failed: %s", operation, reason)).WithData(&OperationErrorData{
		Operation: operation,
		Retryable: false,
		Reason:    reason,
	})
}

// FromContext maps a context error to Cancelled or OperationTimeout. It
// returns nil when ctx is still live.
func FromContext(ctx context.Context, operation string) ClientError {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.DeadlineExceeded):
		return OperationTimeout(operation, 0, err)
	default:
		return Cancelled(operation, err)
	}
}

// InternalError wraps an unexpected failure
func InternalError(operation string, cause error) ClientError {
	message := "Internal error"
	if operation != "" {
		message = fmt.Sprintf("Internal error during %s", operation)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	err := Wrap(cause, CodeInternalError, message)
	if operation != "" {
		err = err.WithContext(&Context{
			Operation: operation,
			Timestamp: time.Now(),
		})
	}
	return err
}

// IsRetryableError checks if an error is retryable based on its properties
func IsRetryableError(err error) bool {
	clientErr, ok := AsClientError(err)
	if !ok {
		return false
	}

	switch data := clientErr.Data().(type) {
	case *TransportErrorData:
		return data.Retryable
	case *ConnectionErrorData:
		return data.Retryable
	case *OperationErrorData:
		return data.Retryable
	case *APIErrorData:
		return data.Status >= 500 || data.Status == 429 || data.Status == 408
	}

	switch clientErr.Category() {
	case CategoryTimeout, CategoryTransport:
		return true
	}
	return false
}
