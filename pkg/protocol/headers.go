package protocol

// Request headers written by the signer
const (
	HeaderAuthorization = "Authorization"
	HeaderDate          = "Date"
	HeaderAPIVersion    = "X-BackendAI-Version"
	HeaderContentType   = "Content-Type"
	HeaderUserAgent     = "User-Agent"
)

// Response and multipart part headers read by the download path
const (
	HeaderTotalPayloadsLength     = "X-TOTAL-PAYLOADS-LENGTH"
	HeaderContentEncoding         = "Content-Encoding"
	HeaderContentTransferEncoding = "Content-Transfer-Encoding"
	HeaderContentDisposition      = "Content-Disposition"
)

// AuthScheme prefixes the Authorization header value
const AuthScheme = "BackendAI"

// Content types used by request bodies
const (
	ContentTypeJSON        = "application/json"
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeText        = "text/plain"
	ContentTypeEventStream = "text/event-stream"
)
