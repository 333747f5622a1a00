package client

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/transport"
)

// Kernel addresses one running compute session's kernel
type Kernel struct {
	session *Session
	ID      string
}

// Kernel returns the wrapper for kernel id
func (s *Session) Kernel(id string) *Kernel {
	return &Kernel{session: s, ID: id}
}

// StreamPty opens the kernel's interactive terminal. Text frames carry
// terminal bytes; use Resize and Restart on the handle for control frames.
func (k *Kernel) StreamPty(ctx context.Context) (*transport.DuplexHandle, error) {
	if k.ID == "" {
		return nil, clienterrors.MissingParameter("kernel_id")
	}
	req := transport.NewRequest(http.MethodGet, "/stream/kernel/"+url.PathEscape(k.ID)+"/pty")
	return k.session.dispatcher.Duplex(ctx, req)
}

// Upload sends local files into the kernel's working directory. Each part is
// named after the path as given.
func (k *Kernel) Upload(ctx context.Context, paths []string, progress *transport.Progress) (string, error) {
	if k.ID == "" {
		return "", clienterrors.MissingParameter("kernel_id")
	}
	if len(paths) == 0 {
		return "", clienterrors.MissingParameter("files")
	}

	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.ToSlash(p)
	}
	attachments, closeAll, err := openAttachments(paths, names)
	if err != nil {
		return "", err
	}
	defer closeAll()

	req := transport.NewRequest(http.MethodPost, "/kernel/"+url.PathEscape(k.ID)+"/upload").
		AttachFiles(attachments...)
	resp, err := k.session.dispatcher.Upload(ctx, req, progress)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
