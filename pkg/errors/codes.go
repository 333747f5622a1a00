package errors

// Validation Errors (1000 to 1099)
const (
	CodeValidationError  int = 1000 // Generic validation error
	CodeMissingParameter int = 1001 // Required parameter missing
	CodeInvalidParameter int = 1002 // Parameter has invalid value
	CodeInvalidFormat    int = 1003 // Parameter has invalid format
	CodeRequestReused    int = 1004 // Request was already rendered once
	CodePathOutsideBase  int = 1005 // File lies outside the upload base directory
)

// Authentication Errors (1100 to 1199)
const (
	CodeSignatureError     int = 1100 // Request could not be signed
	CodeMissingCredentials int = 1101 // Access or secret key absent
	CodeUnsupportedHash    int = 1102 // Unknown signing hash type
)

// Transport Errors (1200 to 1299)
const (
	CodeTransportError    int = 1200 // Generic transport error
	CodeConnectionFailed  int = 1201 // Failed to establish connection
	CodeConnectionLost    int = 1202 // Connection lost during operation
	CodeConnectionTimeout int = 1203 // Connection timed out
	CodeEventSourceError  int = 1204 // SSE stream failure
	CodeDuplexError       int = 1205 // WebSocket failure
	CodeStreamClosed      int = 1206 // Read from a closed stream handle
)

// API Errors (1300 to 1399)
const (
	CodeAPIError int = 1300 // Server answered with a non-success status
)

// Protocol Errors (1400 to 1499)
const (
	CodeProtocolError       int = 1400 // Generic protocol error
	CodeUnsupportedEncoding int = 1401 // Multipart part uses an encoding we cannot consume
	CodeVersionMismatch     int = 1402 // API version tag could not be parsed or compared
	CodeMalformedResponse   int = 1403 // Response body did not match its declared framing
)

// Operation Errors (1500 to 1599)
const (
	CodeOperationCancelled int = 1500 // Operation was cancelled
	CodeOperationTimeout   int = 1501 // Operation timed out
	CodeOperationFailed    int = 1502 // Operation failed
)

const (
	CodeInternalError int = 1900 // Unexpected internal failure
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

// errorCodeRegistry maps error codes to their information
var errorCodeRegistry = map[int]ErrorCodeInfo{
	// Validation Errors
	CodeValidationError:  {CodeValidationError, "ValidationError", "Validation error", CategoryValidation, SeverityError},
	CodeMissingParameter: {CodeMissingParameter, "MissingParameter", "Required parameter missing", CategoryValidation, SeverityError},
	CodeInvalidParameter: {CodeInvalidParameter, "InvalidParameter", "Invalid parameter value", CategoryValidation, SeverityError},
	CodeInvalidFormat:    {CodeInvalidFormat, "InvalidFormat", "Invalid parameter format", CategoryValidation, SeverityError},
	CodeRequestReused:    {CodeRequestReused, "RequestReused", "Request already rendered", CategoryValidation, SeverityError},
	CodePathOutsideBase:  {CodePathOutsideBase, "PathOutsideBase", "File outside base directory", CategoryValidation, SeverityError},

	// Authentication Errors
	CodeSignatureError:     {CodeSignatureError, "SignatureError", "Request signing failed", CategoryAuth, SeverityError},
	CodeMissingCredentials: {CodeMissingCredentials, "MissingCredentials", "Access or secret key missing", CategoryAuth, SeverityError},
	CodeUnsupportedHash:    {CodeUnsupportedHash, "UnsupportedHash", "Unsupported signing hash", CategoryAuth, SeverityError},

	// Transport Errors
	CodeTransportError:    {CodeTransportError, "TransportError", "Transport error", CategoryTransport, SeverityError},
	CodeConnectionFailed:  {CodeConnectionFailed, "ConnectionFailed", "Connection failed", CategoryTransport, SeverityCritical},
	CodeConnectionLost:    {CodeConnectionLost, "ConnectionLost", "Connection lost", CategoryTransport, SeverityError},
	CodeConnectionTimeout: {CodeConnectionTimeout, "ConnectionTimeout", "Connection timeout", CategoryTransport, SeverityError},
	CodeEventSourceError:  {CodeEventSourceError, "EventSourceError", "Event stream error", CategoryTransport, SeverityError},
	CodeDuplexError:       {CodeDuplexError, "DuplexError", "WebSocket error", CategoryTransport, SeverityError},
	CodeStreamClosed:      {CodeStreamClosed, "StreamClosed", "Stream handle closed", CategoryTransport, SeverityInfo},

	// API Errors
	CodeAPIError: {CodeAPIError, "APIError", "API call rejected by server", CategoryAPI, SeverityError},

	// Protocol Errors
	CodeProtocolError:       {CodeProtocolError, "ProtocolError", "Protocol error", CategoryProtocol, SeverityError},
	CodeUnsupportedEncoding: {CodeUnsupportedEncoding, "UnsupportedEncoding", "Unsupported content encoding", CategoryProtocol, SeverityError},
	CodeVersionMismatch:     {CodeVersionMismatch, "VersionMismatch", "API version mismatch", CategoryProtocol, SeverityError},
	CodeMalformedResponse:   {CodeMalformedResponse, "MalformedResponse", "Malformed response", CategoryProtocol, SeverityError},

	// Operation Errors
	CodeOperationCancelled: {CodeOperationCancelled, "OperationCancelled", "Operation cancelled", CategoryCancelled, SeverityInfo},
	CodeOperationTimeout:   {CodeOperationTimeout, "OperationTimeout", "Operation timed out", CategoryTimeout, SeverityError},
	CodeOperationFailed:    {CodeOperationFailed, "OperationFailed", "Operation failed", CategoryInternal, SeverityError},

	CodeInternalError: {CodeInternalError, "InternalError", "Internal error", CategoryInternal, SeverityError},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name of an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// GetErrorCodeDescription returns the description of an error code
func GetErrorCodeDescription(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Description
	}
	return "Unknown error"
}

// GetErrorCodeCategory returns the category of an error code
func GetErrorCodeCategory(code int) Category {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Category
	}
	return CategoryInternal
}

// GetErrorCodeSeverity returns the severity of an error code
func GetErrorCodeSeverity(code int) Severity {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Severity
	}
	return SeverityError
}

// ListErrorCodes returns all registered error codes
func ListErrorCodes() []ErrorCodeInfo {
	codes := make([]ErrorCodeInfo, 0, len(errorCodeRegistry))
	for _, info := range errorCodeRegistry {
		codes = append(codes, info)
	}
	return codes
}
