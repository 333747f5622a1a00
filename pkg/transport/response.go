package transport

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

// maxErrorBody caps how much of a rejected response is kept in an APIError
const maxErrorBody = 64 * 1024

// Response is a fully read fetch or upload response
type Response struct {
	Status int
	Reason string
	Header http.Header
	Body   []byte
}

// ContentType returns the media type of the response without parameters
func (r *Response) ContentType() string {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get(protocol.HeaderContentType))
	if err != nil {
		return ""
	}
	return mediaType
}

// JSON decodes the body into v
func (r *Response) JSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return clienterrors.MalformedResponse("decode json", err)
	}
	return nil
}

// Text returns the body as a string
func (r *Response) Text() string {
	return string(r.Body)
}

// Value parses the body according to the declared content type: JSON bodies
// decode into generic values, everything else is returned as text.
func (r *Response) Value() (interface{}, error) {
	ct := r.ContentType()
	if ct == protocol.ContentTypeJSON || strings.HasSuffix(ct, "+json") {
		if len(r.Body) == 0 {
			return nil, nil
		}
		var v interface{}
		if err := r.JSON(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return r.Text(), nil
}

// reasonPhrase extracts the reason from a status line such as "404 Not Found"
func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// apiErrorFrom drains and closes a non-2xx response into an APIError
func apiErrorFrom(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return clienterrors.APIError(resp.StatusCode, reasonPhrase(resp), body)
}
