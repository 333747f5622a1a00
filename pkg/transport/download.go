package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/logging"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
)

// DownloadOptions controls where and how a multipart response is written
type DownloadOptions struct {
	// Dir receives one file per part, named after the part's filename
	Dir string
	// Progress is updated per chunk; its total is set from the response
	Progress *Progress
	// ChunkSize bounds each read; zero uses the configured chunk size
	ChunkSize int
}

// DownloadedFile is one completed part
type DownloadedFile struct {
	Name string
	Path string
	Size int64
}

// DownloadResult lists the files written by Download
type DownloadResult struct {
	Files []DownloadedFile
	// Bytes is the payload actually received
	Bytes int64
	// DeclaredTotal is X-TOTAL-PAYLOADS-LENGTH, or UnknownTotal
	DeclaredTotal int64
}

type readError struct{ err error }

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// Download sends req and streams its multipart response to opts.Dir. Each
// part lands in a temporary file that is renamed into place only when the
// part is complete; a failed or cancelled part leaves no file behind. The
// download succeeds only when the closing boundary is seen.
func (d *Dispatcher) Download(ctx context.Context, req *Request, opts DownloadOptions) (*DownloadResult, error) {
	if opts.Dir == "" {
		return nil, clienterrors.MissingParameter("dir")
	}
	if info, err := os.Stat(opts.Dir); err != nil || !info.IsDir() {
		return nil, clienterrors.InvalidParameter("dir", opts.Dir, "must be an existing directory")
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = d.cfg.Performance.ChunkSize
	}

	var out *DownloadResult
	err := d.run(ctx, ModeDownload, req, func(ctx context.Context) error {
		c, err := d.begin(ctx, req, ModeDownload)
		if err != nil {
			return err
		}
		defer c.lease.Release()

		resp, err := d.roundTrip(c, nil)
		if err != nil {
			c.finish(statusOf(err), err)
			return err
		}
		defer resp.Body.Close()

		result, err := d.receiveParts(c.ctx, resp, opts)
		d.observer.BytesTransferred(ModeDownload, result.Bytes)
		if err != nil {
			c.finish(resp.StatusCode, err)
			return err
		}
		out = result
		c.finish(resp.StatusCode, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dispatcher) receiveParts(ctx context.Context, resp *http.Response, opts DownloadOptions) (*DownloadResult, error) {
	result := &DownloadResult{DeclaredTotal: UnknownTotal}
	if v := resp.Header.Get(protocol.HeaderTotalPayloadsLength); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			result.DeclaredTotal = n
		}
	}

	progress := opts.Progress
	if progress == nil {
		progress = NewProgress(result.DeclaredTotal, nil)
	} else {
		progress.SetTotal(result.DeclaredTotal)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get(protocol.HeaderContentType))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return result, clienterrors.MalformedResponse("download",
			fmt.Errorf("expected a multipart response, got %q", resp.Header.Get(protocol.HeaderContentType)))
	}

	mr := multipart.NewReader(resp.Body, params["boundary"])
	buf := make([]byte, opts.ChunkSize)
	seen := make(map[string]bool)
	for {
		part, err := mr.NextRawPart()
		// Only a bare io.EOF means the closing boundary was read; a stream
		// that just stops yields a wrapped EOF.
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, d.downloadError(ctx, err)
		}

		file, err := d.receivePart(ctx, part, opts.Dir, buf, progress, seen)
		part.Close()
		result.Bytes += file.Size
		if err != nil {
			return result, err
		}
		result.Files = append(result.Files, file)
	}

	progress.finish(result.Bytes)
	return result, nil
}

// receivePart writes one part to dir. seen holds the destinations already
// written by earlier parts of the same response; a repeat is rejected before
// anything is written.
func (d *Dispatcher) receivePart(ctx context.Context, part *multipart.Part, dir string, buf []byte, progress *Progress, seen map[string]bool) (DownloadedFile, error) {
	name := part.FileName()

	encoding := part.Header.Get(protocol.HeaderContentEncoding)
	if encoding != "" && !strings.EqualFold(encoding, "identity") {
		return DownloadedFile{}, clienterrors.UnsupportedEncoding(protocol.HeaderContentEncoding, encoding, name)
	}
	switch cte := strings.ToLower(part.Header.Get(protocol.HeaderContentTransferEncoding)); cte {
	case "", "binary", "8bit", "7bit":
	default:
		return DownloadedFile{}, clienterrors.UnsupportedEncoding(protocol.HeaderContentTransferEncoding, cte, name)
	}

	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return DownloadedFile{}, clienterrors.MalformedResponse("download",
			fmt.Errorf("part has no usable filename: %q", part.Header.Get(protocol.HeaderContentDisposition)))
	}
	dest := filepath.Join(dir, name)
	if seen[dest] {
		return DownloadedFile{}, clienterrors.MalformedResponse("download",
			fmt.Errorf("part %q repeats an earlier file name", name))
	}
	seen[dest] = true

	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return DownloadedFile{}, clienterrors.InternalError("create temp file", err)
	}
	complete := false
	defer func() {
		if !complete {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err := copyChunks(ctx, NewProgressWriter(tmp, progress), part, buf)
	file := DownloadedFile{Name: name, Path: dest, Size: n}
	if err != nil {
		var rerr *readError
		if stderrors.As(err, &rerr) {
			return file, d.downloadError(ctx, rerr.err)
		}
		if cerr := clienterrors.FromContext(ctx, "download"); cerr != nil {
			return file, cerr
		}
		return file, clienterrors.InternalError("write "+name, err)
	}

	if err := tmp.Close(); err != nil {
		return file, clienterrors.InternalError("close "+name, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return file, clienterrors.InternalError("rename "+name, err)
	}
	complete = true

	d.logger.WithFields(
		logging.String("file", dest),
		logging.Int64("size", n),
	).Debug("Download part completed")
	return file, nil
}

// downloadError maps a failure reading the multipart stream
func (d *Dispatcher) downloadError(ctx context.Context, err error) error {
	if cerr := clienterrors.FromContext(ctx, "download"); cerr != nil {
		return cerr
	}
	if stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, io.EOF) {
		return clienterrors.MalformedResponse("download", fmt.Errorf("multipart stream ended before its closing boundary: %w", err))
	}
	return clienterrors.ConnectionLost("http", d.cfg.Endpoint, err)
}

// copyChunks copies src to dst through buf, checking ctx between chunks.
// Read failures are wrapped in readError.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, &readError{err: rerr}
		}
	}
}
