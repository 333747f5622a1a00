package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIErrorData carries the server's rejection of an API call
type APIErrorData struct {
	Status int    `json:"status"`
	Reason string `json:"reason"`
	Body   string `json:"body,omitempty"`

	// Populated when the body is a problem-details JSON document
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
	Msg   string `json:"msg,omitempty"`
}

// APIError creates an error for a non-success HTTP status. The body is kept
// verbatim; when it decodes as a JSON object its type/title/msg fields are
// lifted into the structured data.
func APIError(status int, reason string, body []byte) ClientError {
	data := &APIErrorData{
		Status: status,
		Reason: reason,
		Body:   string(body),
	}

	var problem struct {
		Type  string `json:"type"`
		Title string `json:"title"`
		Msg   string `json:"msg"`
	}
	if len(body) > 0 && json.Unmarshal(body, &problem) == nil {
		data.Type = problem.Type
		data.Title = problem.Title
		data.Msg = problem.Msg
	}

	message := fmt.Sprintf("API error %d %s", status, reason)
	err := New(CodeAPIError, message)
	switch {
	case data.Title != "" && data.Msg != "":
		err = err.WithDetail(fmt.Sprintf("%s (%s)", data.Title, data.Msg))
	case data.Title != "":
		err = err.WithDetail(data.Title)
	case data.Msg != "":
		err = err.WithDetail(data.Msg)
	case data.Type == "" && len(body) > 0 && len(body) <= 256:
		err = err.WithDetail(strings.TrimSpace(string(body)))
	}

	return err.WithData(data)
}

// APIErrorDataOf returns the structured data of an API error anywhere in err's chain
func APIErrorDataOf(err error) (*APIErrorData, bool) {
	clientErr, ok := AsClientError(err)
	if !ok || clientErr.Code() != CodeAPIError {
		return nil, false
	}
	data, ok := clientErr.Data().(*APIErrorData)
	return data, ok
}

// SignatureErrorData describes why a request could not be signed
type SignatureErrorData struct {
	HashType string `json:"hash_type,omitempty"`
	Field    string `json:"field,omitempty"`
	Reason   string `json:"reason"`
}

// SignatureError creates a generic signing failure
func SignatureError(reason string, cause error) ClientError {
	return Wrap(cause, CodeSignatureError, fmt.Sprintf("Cannot sign request: %s", reason)).WithData(&SignatureErrorData{Reason: reason})
}

// MissingCredentials creates an error for an absent access or secret key
func MissingCredentials(field string) ClientError {
	return New(CodeMissingCredentials, fmt.Sprintf("Cannot sign request: %s is not set", field)).WithData(&SignatureErrorData{
		Field:  field,
		Reason: "missing credentials",
	})
}

// UnsupportedHash creates an error for an unknown signing hash
func UnsupportedHash(hashType string) ClientError {
	return New(CodeUnsupportedHash, fmt.Sprintf("Cannot sign request: unsupported hash type %q", hashType)).WithData(&SignatureErrorData{
		HashType: hashType,
		Reason:   "unsupported hash type",
	})
}

// EncodingErrorData names the offending multipart header
type EncodingErrorData struct {
	Header string `json:"header"`
	Value  string `json:"value"`
	Part   string `json:"part,omitempty"`
}

// UnsupportedEncoding creates an error for a multipart part whose content or
// transfer encoding cannot be consumed as raw bytes
func UnsupportedEncoding(header, value, part string) ClientError {
	message := fmt.Sprintf("Unsupported %s: %s", header, value)
	if part != "" {
		message = fmt.Sprintf("Unsupported %s %q in part %s", header, value, part)
	}
	return New(CodeUnsupportedEncoding, message).WithData(&EncodingErrorData{
		Header: header,
		Value:  value,
		Part:   part,
	})
}

// ProtocolError creates a generic protocol violation error
func ProtocolError(reason string) ClientError {
	return New(CodeProtocolError, reason)
}

// MalformedResponse creates an error for a response body that breaks its framing
func MalformedResponse(operation string, cause error) ClientError {
	message := fmt.Sprintf("Malformed response during %s", operation)
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}
	return Wrap(cause, CodeMalformedResponse, message)
}

// VersionMismatch creates an error for an unparseable or incompatible API version
func VersionMismatch(expected, actual string) ClientError {
	return New(CodeVersionMismatch, fmt.Sprintf("API version mismatch: expected %s, got %s", expected, actual))
}
