package client

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/transport"
)

// Folder is a virtual folder as listed by the manager
type Folder struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Host       string `json:"host"`
	UsageMode  string `json:"usage_mode,omitempty"`
	Permission string `json:"permission,omitempty"`
	IsOwner    bool   `json:"is_owner"`
	Type       string `json:"type,omitempty"`
	Group      string `json:"group,omitempty"`
	User       string `json:"user,omitempty"`
	NumFiles   int    `json:"numFiles,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// FolderHosts lists the storage hosts a folder may be created on
type FolderHosts struct {
	Default string   `json:"default"`
	Allowed []string `json:"allowed"`
}

// Invitation is a pending folder share
type Invitation struct {
	ID          string `json:"id"`
	Inviter     string `json:"inviter"`
	Perm        string `json:"perm"`
	State       string `json:"state"`
	VFolderID   string `json:"vfolder_id"`
	VFolderName string `json:"vfolder_name"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateFolderOptions are the optional fields of VFolders.Create
type CreateFolderOptions struct {
	Host          string
	UnmanagedPath string
	Group         string
	// UsageMode defaults to "general"
	UsageMode string
	// Permission defaults to "rw"
	Permission string
}

// VFolders holds the folder operations that are not bound to one folder
type VFolders struct {
	session *Session
}

// VFolders returns the folder collection wrapper
func (s *Session) VFolders() *VFolders {
	return &VFolders{session: s}
}

// VFolder operates on one named folder
type VFolder struct {
	session *Session
	name    string
}

// VFolder returns the wrapper for folder name
func (s *Session) VFolder(name string) *VFolder {
	return &VFolder{session: s, name: name}
}

// Name returns the folder name, updated by Rename
func (f *VFolder) Name() string {
	return f.name
}

func (f *VFolder) path(suffix string) string {
	return "/folders/" + url.PathEscape(f.name) + suffix
}

// fetchJSON dispatches req with an optional JSON body and decodes the reply into out
func fetchJSON(ctx context.Context, s *Session, req *transport.Request, body, out interface{}) error {
	if body != nil {
		if err := req.SetJSON(body); err != nil {
			return err
		}
	}
	resp, err := s.dispatcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.JSON(out)
}

// fetchText dispatches req with an optional JSON body and returns the reply text
func fetchText(ctx context.Context, s *Session, req *transport.Request, body interface{}) (string, error) {
	if body != nil {
		if err := req.SetJSON(body); err != nil {
			return "", err
		}
	}
	resp, err := s.dispatcher.Fetch(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Create creates a folder
func (v *VFolders) Create(ctx context.Context, name string, opts CreateFolderOptions) (*Folder, error) {
	if name == "" {
		return nil, clienterrors.MissingParameter("name")
	}
	if opts.UsageMode == "" {
		opts.UsageMode = "general"
	}
	if opts.Permission == "" {
		opts.Permission = "rw"
	}
	body := map[string]interface{}{
		"name":           name,
		"host":           nullable(opts.Host),
		"unmanaged_path": nullable(opts.UnmanagedPath),
		"group":          nullable(opts.Group),
		"usage_mode":     opts.UsageMode,
		"permission":     opts.Permission,
	}
	var folder Folder
	if err := fetchJSON(ctx, v.session, transport.NewRequest(http.MethodPost, "/folders"), body, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// nullable maps an empty string to JSON null
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// List lists the caller's folders, or every folder when all is set
func (v *VFolders) List(ctx context.Context, all bool) ([]Folder, error) {
	var folders []Folder
	body := map[string]bool{"all": all}
	if err := fetchJSON(ctx, v.session, transport.NewRequest(http.MethodGet, "/folders"), body, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// ListHosts lists the storage hosts available to the caller
func (v *VFolders) ListHosts(ctx context.Context) (*FolderHosts, error) {
	var hosts FolderHosts
	if err := fetchJSON(ctx, v.session, transport.NewRequest(http.MethodGet, "/folders/_/hosts"), nil, &hosts); err != nil {
		return nil, err
	}
	return &hosts, nil
}

// ListAllHosts lists every storage host (superadmin)
func (v *VFolders) ListAllHosts(ctx context.Context) (*FolderHosts, error) {
	var hosts FolderHosts
	if err := fetchJSON(ctx, v.session, transport.NewRequest(http.MethodGet, "/folders/_/all_hosts"), nil, &hosts); err != nil {
		return nil, err
	}
	return &hosts, nil
}

// ListAllowedTypes lists the folder ownership types the caller may create
func (v *VFolders) ListAllowedTypes(ctx context.Context) ([]string, error) {
	var types []string
	if err := fetchJSON(ctx, v.session, transport.NewRequest(http.MethodGet, "/folders/_/allowed_types"), nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// DeleteByID deletes a folder by its ID
func (v *VFolders) DeleteByID(ctx context.Context, id string) error {
	return fetchJSON(ctx, v.session, transport.NewRequest(http.MethodDelete, "/folders"),
		map[string]string{"id": id}, nil)
}

// Invitations lists the invitations sent to the caller
func (v *VFolders) Invitations(ctx context.Context) ([]Invitation, error) {
	var out struct {
		Invitations []Invitation `json:"invitations"`
	}
	if err := fetchJSON(ctx, v.session, transport.NewRequest(http.MethodGet, "/folders/invitations/list"), nil, &out); err != nil {
		return nil, err
	}
	return out.Invitations, nil
}

// AcceptInvitation accepts a folder share
func (v *VFolders) AcceptInvitation(ctx context.Context, invitationID string) error {
	return fetchJSON(ctx, v.session, transport.NewRequest(http.MethodPost, "/folders/invitations/accept"),
		map[string]string{"inv_id": invitationID}, nil)
}

// DeleteInvitation rejects or withdraws a folder share
func (v *VFolders) DeleteInvitation(ctx context.Context, invitationID string) error {
	return fetchJSON(ctx, v.session, transport.NewRequest(http.MethodDelete, "/folders/invitations/delete"),
		map[string]string{"inv_id": invitationID}, nil)
}

// FstabContents is a host's fstab as reported by the manager
type FstabContents struct {
	Content string `json:"content"`
	Node    string `json:"node"`
	NodeID  string `json:"node_id"`
}

// FstabContents reads the fstab of the agent with agentID, or of the
// manager when agentID is empty (superadmin)
func (v *VFolders) FstabContents(ctx context.Context, agentID string) (*FstabContents, error) {
	var out FstabContents
	body := map[string]interface{}{"agent_id": nullable(agentID)}
	if err := fetchJSON(ctx, v.session, transport.NewRequest(http.MethodGet, "/folders/_/fstab"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMounts lists the host mounts of the manager, storage proxies and
// agents (superadmin)
func (v *VFolders) ListMounts(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := fetchJSON(ctx, v.session, transport.NewRequest(http.MethodGet, "/folders/_/mounts"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MountOptions are the optional fields of VFolders.MountHost
type MountOptions struct {
	// Options is passed to mount -o
	Options string
	// EditFstab also records the mount in fstab
	EditFstab bool
}

// MountHost mounts fsLocation as name on every host (superadmin)
func (v *VFolders) MountHost(ctx context.Context, name, fsLocation string, opts MountOptions) (map[string]interface{}, error) {
	if name == "" {
		return nil, clienterrors.MissingParameter("name")
	}
	body := map[string]interface{}{
		"name":        name,
		"fs_location": fsLocation,
		"options":     nullable(opts.Options),
		"edit_fstab":  opts.EditFstab,
	}
	var out map[string]interface{}
	if err := fetchJSON(ctx, v.session, transport.NewRequest(http.MethodPost, "/folders/_/mounts"), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnmountHost unmounts name on every host (superadmin)
func (v *VFolders) UnmountHost(ctx context.Context, name string, editFstab bool) (map[string]interface{}, error) {
	if name == "" {
		return nil, clienterrors.MissingParameter("name")
	}
	body := map[string]interface{}{"name": name, "edit_fstab": editFstab}
	var out map[string]interface{}
	if err := fetchJSON(ctx, v.session, transport.NewRequest(http.MethodDelete, "/folders/_/mounts"), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Info returns the folder's details
func (f *VFolder) Info(ctx context.Context) (*Folder, error) {
	var folder Folder
	if err := fetchJSON(ctx, f.session, transport.NewRequest(http.MethodGet, f.path("")), nil, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// Delete deletes the folder
func (f *VFolder) Delete(ctx context.Context) error {
	_, err := fetchText(ctx, f.session, transport.NewRequest(http.MethodDelete, f.path("")), nil)
	return err
}

// Rename renames the folder. Later calls on f use the new name.
func (f *VFolder) Rename(ctx context.Context, newName string) error {
	if newName == "" {
		return clienterrors.MissingParameter("new_name")
	}
	_, err := fetchText(ctx, f.session, transport.NewRequest(http.MethodPost, f.path("/rename")),
		map[string]string{"new_name": newName})
	if err != nil {
		return err
	}
	f.name = newName
	return nil
}

// Mkdir creates a directory inside the folder
func (f *VFolder) Mkdir(ctx context.Context, path string) error {
	_, err := fetchText(ctx, f.session, transport.NewRequest(http.MethodPost, f.path("/mkdir")),
		map[string]string{"path": path})
	return err
}

// RequestDownload asks the storage proxy for a download token for one file
func (f *VFolder) RequestDownload(ctx context.Context, filename string) (string, error) {
	return fetchText(ctx, f.session, transport.NewRequest(http.MethodPost, f.path("/request_download")),
		map[string]string{"file": filename})
}

// RenameFile renames a file inside the folder
func (f *VFolder) RenameFile(ctx context.Context, targetPath, newName string) error {
	return fetchJSON(ctx, f.session, transport.NewRequest(http.MethodPost, f.path("/rename_file")),
		map[string]string{"target_path": targetPath, "new_name": newName}, nil)
}

// DeleteFiles deletes files inside the folder
func (f *VFolder) DeleteFiles(ctx context.Context, files []string, recursive bool) error {
	_, err := fetchText(ctx, f.session, transport.NewRequest(http.MethodDelete, f.path("/delete_files")),
		map[string]interface{}{"files": files, "recursive": recursive})
	return err
}

// ListFiles returns the raw listing of path inside the folder
func (f *VFolder) ListFiles(ctx context.Context, path string) (map[string]interface{}, error) {
	if path == "" {
		path = "."
	}
	var listing map[string]interface{}
	if err := fetchJSON(ctx, f.session, transport.NewRequest(http.MethodGet, f.path("/files")),
		map[string]string{"path": path}, &listing); err != nil {
		return nil, err
	}
	return listing, nil
}

// Invite shares the folder with users by e-mail and returns the invited IDs
func (f *VFolder) Invite(ctx context.Context, perm string, emails []string) ([]string, error) {
	var out struct {
		InvitedIDs []string `json:"invited_ids"`
	}
	if err := fetchJSON(ctx, f.session, transport.NewRequest(http.MethodPost, f.path("/invite")),
		map[string]interface{}{"perm": perm, "user_ids": emails}, &out); err != nil {
		return nil, err
	}
	return out.InvitedIDs, nil
}

// Upload sends local files to the folder as one multipart request. Each part
// is named after the file's path relative to basedir, which defaults to the
// working directory; files outside basedir are rejected before anything is
// sent.
func (f *VFolder) Upload(ctx context.Context, files []string, basedir string, progress *transport.Progress) (string, error) {
	if len(files) == 0 {
		return "", clienterrors.MissingParameter("files")
	}

	base := basedir
	if base == "" {
		var err error
		if base, err = os.Getwd(); err != nil {
			return "", clienterrors.InternalError("upload", err)
		}
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return "", clienterrors.InvalidParameter("basedir", basedir, err.Error())
	}

	names := make([]string, len(files))
	for i, file := range files {
		rel, err := relativeTo(base, file)
		if err != nil {
			return "", err
		}
		names[i] = rel
	}

	attachments, closeAll, err := openAttachments(files, names)
	if err != nil {
		return "", err
	}
	defer closeAll()

	req := transport.NewRequest(http.MethodPost, f.path("/upload")).AttachFiles(attachments...)
	resp, err := f.session.dispatcher.Upload(ctx, req, progress)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// relativeTo returns file's slash-separated path under base
func relativeTo(base, file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", clienterrors.InvalidParameter("files", file, err.Error())
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", clienterrors.PathOutsideBase(abs, base)
	}
	return filepath.ToSlash(rel), nil
}

// openAttachments opens every file for reading. The returned function closes
// the files that were opened.
func openAttachments(paths, names []string) ([]transport.AttachedFile, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, fh := range opened {
			_ = fh.Close()
		}
	}

	attachments := make([]transport.AttachedFile, 0, len(paths))
	for i, path := range paths {
		fh, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, clienterrors.InvalidParameter("files", path, err.Error())
		}
		opened = append(opened, fh)

		info, err := fh.Stat()
		if err != nil {
			closeAll()
			return nil, nil, clienterrors.InvalidParameter("files", path, err.Error())
		}
		if info.IsDir() {
			closeAll()
			return nil, nil, clienterrors.InvalidParameter("files", path, "is a directory")
		}

		attachments = append(attachments, transport.AttachedFile{
			FieldName:   "src",
			Filename:    names[i],
			Reader:      fh,
			ContentType: protocol.ContentTypeOctetStream,
			Size:        info.Size(),
		})
	}
	return attachments, closeAll, nil
}

// Download fetches files from the folder into destDir, which defaults to the
// working directory. Each multipart part becomes one file named after the
// part's filename.
func (f *VFolder) Download(ctx context.Context, files []string, destDir string, progress *transport.Progress) (*transport.DownloadResult, error) {
	if len(files) == 0 {
		return nil, clienterrors.MissingParameter("files")
	}
	if destDir == "" {
		destDir = "."
	}

	req := transport.NewRequest(http.MethodGet, f.path("/download"))
	if err := req.SetJSON(map[string][]string{"files": files}); err != nil {
		return nil, err
	}
	return f.session.dispatcher.Download(ctx, req, transport.DownloadOptions{
		Dir:       destDir,
		Progress:  progress,
		ChunkSize: f.session.cfg.Performance.ChunkSize,
	})
}
