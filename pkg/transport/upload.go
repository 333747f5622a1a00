package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

var errBodyAborted = stderrors.New("request body aborted")

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartBody encodes attached files into a pipe from a writer goroutine
// while the HTTP client reads the other end.
type multipartBody struct {
	pr *io.PipeReader
	g  errgroup.Group
}

func newMultipartBody(ctx context.Context, files []AttachedFile, boundary string, progress *Progress) *multipartBody {
	pr, pw := io.Pipe()
	b := &multipartBody{pr: pr}
	b.g.Go(func() error {
		err := writeMultipart(ctx, pw, files, boundary, progress)
		pw.CloseWithError(err)
		return err
	})
	return b
}

// Read implements io.Reader
func (b *multipartBody) Read(p []byte) (int, error) {
	return b.pr.Read(p)
}

// Close implements io.Closer
func (b *multipartBody) Close() error {
	return b.pr.Close()
}

// abort unblocks the writer when the response no longer needs the body
func (b *multipartBody) abort() {
	b.pr.CloseWithError(errBodyAborted)
}

// wait returns the writer's error, ignoring failures caused by the reader
// side going away.
func (b *multipartBody) wait() error {
	err := b.g.Wait()
	if stderrors.Is(err, errBodyAborted) || stderrors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}

func writeMultipart(ctx context.Context, w io.Writer, files []AttachedFile, boundary string, progress *Progress) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return err
	}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Reader == nil {
			return fmt.Errorf("attached file %d (%s) has no reader", i, f.Filename)
		}

		fieldName := f.FieldName
		if fieldName == "" {
			fieldName = "src"
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = protocol.ContentTypeOctetStream
		}

		h := make(textproto.MIMEHeader)
		h.Set(protocol.HeaderContentDisposition, fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(fieldName), quoteEscaper.Replace(f.Filename)))
		h.Set(protocol.HeaderContentType, contentType)

		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, NewProgressReader(f.Reader, progress)); err != nil {
			return fmt.Errorf("write part %q: %w", f.Filename, err)
		}
	}

	return mw.Close()
}
