package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/auth"
	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

// QueryParam is one query string pair. Order is preserved on the wire and in
// the signed URL.
type QueryParam struct {
	Key   string
	Value string
}

// AttachedFile is one part of a multipart upload. The caller owns Reader; the
// dispatcher reads it once and never closes it.
type AttachedFile struct {
	FieldName   string
	Filename    string
	Reader      io.Reader
	ContentType string
	Size        int64
}

type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyBytes
	bodyReader
	bodyFiles
)

// Request is the logical description of one API call. It is built per call
// and can be rendered exactly once.
type Request struct {
	Method string
	Path   string
	Query  []QueryParam
	Header http.Header

	// ContentType overrides the type implied by the body
	ContentType string

	kind   bodyKind
	data   []byte
	reader io.Reader
	files  []AttachedFile

	rendered atomic.Bool
}

// NewRequest creates a request for method and path. Path is relative to the
// endpoint and should start with a slash.
func NewRequest(method, path string) *Request {
	return &Request{
		Method: strings.ToUpper(method),
		Path:   path,
		Header: http.Header{},
	}
}

// AddQuery appends a query parameter
func (r *Request) AddQuery(key, value string) *Request {
	r.Query = append(r.Query, QueryParam{Key: key, Value: value})
	return r
}

// SetJSON encodes v as the request body
func (r *Request) SetJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return clienterrors.InvalidParameter("body", fmt.Sprintf("%T", v), err.Error())
	}
	r.kind = bodyBytes
	r.data = data
	r.ContentType = protocol.ContentTypeJSON
	return nil
}

// SetText sets a plain text body
func (r *Request) SetText(s string) *Request {
	r.kind = bodyBytes
	r.data = []byte(s)
	r.ContentType = protocol.ContentTypeText
	return r
}

// SetBody streams body as-is with the given content type
func (r *Request) SetBody(body io.Reader, contentType string) *Request {
	if contentType == "" {
		contentType = protocol.ContentTypeOctetStream
	}
	r.kind = bodyReader
	r.reader = body
	r.ContentType = contentType
	return r
}

// AttachFiles sets a multipart body built from files in order
func (r *Request) AttachFiles(files ...AttachedFile) *Request {
	r.kind = bodyFiles
	r.files = append([]AttachedFile(nil), files...)
	r.ContentType = ""
	return r
}

// Files returns the attached files
func (r *Request) Files() []AttachedFile {
	return r.files
}

// RelativeURL returns the path followed by the query in insertion order
func (r *Request) RelativeURL() string {
	path := "/" + strings.TrimLeft(r.Path, "/")
	if len(r.Query) == 0 {
		return path
	}
	var sb strings.Builder
	sb.WriteString(path)
	sb.WriteByte('?')
	for i, q := range r.Query {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(q.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(q.Value))
	}
	return sb.String()
}

// RenderInput carries the session values a Request is rendered against
type RenderInput struct {
	Endpoint    *url.URL
	SessionMode bool
	APIVersion  string
	Date        time.Time
	UserAgent   string
	Credentials auth.Credentials
	Unsigned    bool
}

// Rendered is a request whose signed values are frozen. Headers are written
// from the same values the signature covers.
type Rendered struct {
	Method      string
	URL         *url.URL
	Header      http.Header
	ContentType string
	Signature   string

	kind     bodyKind
	data     []byte
	reader   io.Reader
	files    []AttachedFile
	boundary string
}

// Render freezes the content type, date and API version, signs them and
// builds the wire headers. A second call fails with a RequestReused error.
func (r *Request) Render(in RenderInput) (*Rendered, error) {
	if !r.rendered.CompareAndSwap(false, true) {
		return nil, clienterrors.RequestReused(r.Method, r.Path)
	}
	if in.Endpoint == nil {
		return nil, clienterrors.MissingParameter("endpoint")
	}

	relURL := r.RelativeURL()
	if in.SessionMode {
		relURL = "/func" + relURL
	}

	out := &Rendered{
		Method: r.Method,
		kind:   r.kind,
		data:   r.data,
		reader: r.reader,
		files:  r.files,
	}

	contentType := r.ContentType
	if r.kind == bodyFiles {
		// The boundary is part of the header value, so it is picked now.
		out.boundary = multipart.NewWriter(io.Discard).Boundary()
		contentType = "multipart/form-data; boundary=" + out.boundary
	}
	if contentType == "" {
		contentType = protocol.ContentTypeJSON
	}
	out.ContentType = contentType

	target, err := joinURL(in.Endpoint, relURL)
	if err != nil {
		return nil, clienterrors.InvalidParameter("path", r.Path, err.Error())
	}
	out.URL = target

	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if in.UserAgent != "" {
		header.Set(protocol.HeaderUserAgent, in.UserAgent)
	}
	header.Set(protocol.HeaderContentType, contentType)

	date := in.Date.UTC().Truncate(time.Second)
	switch {
	case in.Unsigned:
	case in.SessionMode:
		header.Set(protocol.HeaderDate, date.Format(auth.TimestampLayout))
		header.Set(protocol.HeaderAPIVersion, in.APIVersion)
	default:
		signed, signature, err := auth.Sign(auth.SignInput{
			Method:      r.Method,
			APIVersion:  in.APIVersion,
			Endpoint:    in.Endpoint.String(),
			Date:        date,
			RelURL:      relURL,
			ContentType: contentType,
			Credentials: in.Credentials,
		})
		if err != nil {
			return nil, err
		}
		for k, v := range signed {
			header[k] = v
		}
		out.Signature = signature
	}
	out.Header = header
	return out, nil
}

func joinURL(base *url.URL, relURL string) (*url.URL, error) {
	rel, err := url.Parse(relURL)
	if err != nil {
		return nil, err
	}
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + rel.Path
	u.RawPath = strings.TrimRight(base.EscapedPath(), "/") + rel.EscapedPath()
	u.RawQuery = rel.RawQuery
	u.Fragment = ""
	return &u, nil
}

// fixedBody returns the body of a non-multipart request
func (r *Rendered) fixedBody() io.Reader {
	switch r.kind {
	case bodyBytes:
		return bytes.NewReader(r.data)
	case bodyReader:
		return r.reader
	}
	return nil
}
