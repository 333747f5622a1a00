package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clienterrors "github.com/ajitpratap0/backendai-sdk-go/pkg/errors"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/backendai-sdk-go/pkg/transport"
)

func TestVFolderCreateDefaults(t *testing.T) {
	m := newFakeManager(t)
	m.mux.HandleFunc("POST /folders", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "mydata", body["name"])
		assert.Equal(t, "general", body["usage_mode"])
		assert.Equal(t, "rw", body["permission"])
		assert.Contains(t, body, "host")
		assert.Nil(t, body["host"])
		writeJSON(w, http.StatusCreated, Folder{ID: "f-1", Name: "mydata", Host: "local"})
	})

	s := newTestSession(t, m.URL)
	folder, err := s.VFolders().Create(context.Background(), "mydata", CreateFolderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "f-1", folder.ID)
	assert.Equal(t, "local", folder.Host)

	_, err = s.VFolders().Create(context.Background(), "", CreateFolderOptions{})
	assert.True(t, clienterrors.IsCode(err, clienterrors.CodeMissingParameter))
}

func TestVFolderListSendsJSONOnGet(t *testing.T) {
	m := newFakeManager(t)
	m.mux.HandleFunc("GET /folders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, protocol.ContentTypeJSON, r.Header.Get(protocol.HeaderContentType))
		assert.Equal(t, true, decodeBody(t, r)["all"])
		writeJSON(w, http.StatusOK, []Folder{{Name: "a"}, {Name: "b"}})
	})

	s := newTestSession(t, m.URL)
	folders, err := s.VFolders().List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "b", folders[1].Name)
}

func TestVFolderCollectionEndpoints(t *testing.T) {
	m := newFakeManager(t)
	m.mux.HandleFunc("GET /folders/_/hosts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, FolderHosts{Default: "local", Allowed: []string{"local", "nfs"}})
	})
	m.mux.HandleFunc("GET /folders/_/all_hosts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, FolderHosts{Default: "local", Allowed: []string{"local", "nfs", "ceph"}})
	})
	m.mux.HandleFunc("GET /folders/_/allowed_types", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []string{"user", "group"})
	})
	m.mux.HandleFunc("DELETE /folders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "f-9", decodeBody(t, r)["id"])
		writeJSON(w, http.StatusOK, map[string]string{})
	})
	m.mux.HandleFunc("GET /folders/invitations/list", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]Invitation{
			"invitations": {{ID: "inv-1", Inviter: "a@example.com", Perm: "ro", VFolderName: "shared"}},
		})
	})
	m.mux.HandleFunc("POST /folders/invitations/accept", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "inv-1", decodeBody(t, r)["inv_id"])
		writeJSON(w, http.StatusOK, map[string]string{"msg": "accepted"})
	})
	m.mux.HandleFunc("DELETE /folders/invitations/delete", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "inv-2", decodeBody(t, r)["inv_id"])
		writeJSON(w, http.StatusOK, map[string]string{"msg": "deleted"})
	})
	m.mux.HandleFunc("GET /folders/_/fstab", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Contains(t, body, "agent_id")
		node := "manager"
		if id, _ := body["agent_id"].(string); id != "" {
			node = "agent"
		}
		writeJSON(w, http.StatusOK, FstabContents{Content: "/dev/sda1 / ext4 defaults 0 1\n", Node: node, NodeID: "i-1"})
	})
	m.mux.HandleFunc("GET /folders/_/mounts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"manager": map[string]interface{}{"success": true, "mounts": [][]string{{"/mnt/nfs", "nfs:/export"}}},
		})
	})
	m.mux.HandleFunc("POST /folders/_/mounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, map[string]interface{}{
			"name":        "nfs",
			"fs_location": "nfs:/export",
			"options":     "ro",
			"edit_fstab":  true,
		}, decodeBody(t, r))
		writeJSON(w, http.StatusOK, map[string]interface{}{"manager": map[string]interface{}{"success": true}})
	})
	m.mux.HandleFunc("DELETE /folders/_/mounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, map[string]interface{}{"name": "nfs", "edit_fstab": false}, decodeBody(t, r))
		writeJSON(w, http.StatusOK, map[string]interface{}{"manager": map[string]interface{}{"success": true}})
	})

	ctx := context.Background()
	v := newTestSession(t, m.URL).VFolders()

	hosts, err := v.ListHosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local", hosts.Default)

	all, err := v.ListAllHosts(ctx)
	require.NoError(t, err)
	assert.Len(t, all.Allowed, 3)

	types, err := v.ListAllowedTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "group"}, types)

	require.NoError(t, v.DeleteByID(ctx, "f-9"))

	invitations, err := v.Invitations(ctx)
	require.NoError(t, err)
	require.Len(t, invitations, 1)
	assert.Equal(t, "shared", invitations[0].VFolderName)

	require.NoError(t, v.AcceptInvitation(ctx, "inv-1"))
	require.NoError(t, v.DeleteInvitation(ctx, "inv-2"))

	fstab, err := v.FstabContents(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "manager", fstab.Node)
	fstab, err = v.FstabContents(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, "agent", fstab.Node)

	mounts, err := v.ListMounts(ctx)
	require.NoError(t, err)
	assert.Contains(t, mounts, "manager")

	_, err = v.MountHost(ctx, "nfs", "nfs:/export", MountOptions{Options: "ro", EditFstab: true})
	require.NoError(t, err)
	_, err = v.UnmountHost(ctx, "nfs", false)
	require.NoError(t, err)

	_, err = v.MountHost(ctx, "", "nfs:/export", MountOptions{})
	assert.True(t, clienterrors.IsCode(err, clienterrors.CodeMissingParameter))
}

func TestVFolderNamedOperations(t *testing.T) {
	m := newFakeManager(t)
	m.mux.HandleFunc("GET /folders/{name}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Folder{Name: r.PathValue("name"), NumFiles: 3})
	})
	m.mux.HandleFunc("POST /folders/{name}/rename", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "my data", r.PathValue("name"))
		assert.Equal(t, "renamed", decodeBody(t, r)["new_name"])
		w.WriteHeader(http.StatusCreated)
	})
	m.mux.HandleFunc("POST /folders/{name}/mkdir", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "renamed", r.PathValue("name"))
		assert.Equal(t, "sub/dir", decodeBody(t, r)["path"])
		w.WriteHeader(http.StatusCreated)
	})
	m.mux.HandleFunc("POST /folders/{name}/request_download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a.csv", decodeBody(t, r)["file"])
		_, _ = io.WriteString(w, "token-123")
	})
	m.mux.HandleFunc("POST /folders/{name}/rename_file", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "a.csv", body["target_path"])
		assert.Equal(t, "b.csv", body["new_name"])
		writeJSON(w, http.StatusOK, map[string]string{})
	})
	m.mux.HandleFunc("DELETE /folders/{name}/delete_files", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, []interface{}{"b.csv"}, body["files"])
		assert.Equal(t, true, body["recursive"])
		w.WriteHeader(http.StatusNoContent)
	})
	m.mux.HandleFunc("GET /folders/{name}/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ".", decodeBody(t, r)["path"])
		writeJSON(w, http.StatusOK, map[string]interface{}{"folder_path": "/vfroot/renamed", "files": "[]"})
	})
	m.mux.HandleFunc("POST /folders/{name}/invite", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "rw", body["perm"])
		writeJSON(w, http.StatusCreated, map[string][]string{"invited_ids": {"u-1"}})
	})
	m.mux.HandleFunc("DELETE /folders/{name}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "renamed", r.PathValue("name"))
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	f := newTestSession(t, m.URL).VFolder("my data")

	info, err := f.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "my data", info.Name)
	assert.Equal(t, 3, info.NumFiles)

	require.NoError(t, f.Rename(ctx, "renamed"))
	assert.Equal(t, "renamed", f.Name())

	require.NoError(t, f.Mkdir(ctx, "sub/dir"))

	token, err := f.RequestDownload(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, "token-123", token)

	require.NoError(t, f.RenameFile(ctx, "a.csv", "b.csv"))
	require.NoError(t, f.DeleteFiles(ctx, []string{"b.csv"}, true))

	listing, err := f.ListFiles(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "/vfroot/renamed", listing["folder_path"])

	invited, err := f.Invite(ctx, "rw", []string{"b@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1"}, invited)

	require.NoError(t, f.Delete(ctx))
}

func TestVFolderUpload(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), make([]byte, 100), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(base, "sub", "b.txt"), make([]byte, 300), 0o600))

	m := newFakeManager(t)
	m.mux.HandleFunc("POST /folders/{name}/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mydata", r.PathValue("name"))
		mediaType, params, err := mime.ParseMediaType(r.Header.Get(protocol.HeaderContentType))
		require.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mediaType)

		mr := multipart.NewReader(r.Body, params["boundary"])
		var got []string
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			assert.Equal(t, "src", part.FormName())
			assert.Equal(t, protocol.ContentTypeOctetStream, part.Header.Get(protocol.HeaderContentType))
			n, _ := io.Copy(io.Discard, part)
			got = append(got, fmt.Sprintf("%s:%d", part.FileName(), n))
		}
		assert.Equal(t, []string{"a.txt:100", "sub/b.txt:300"}, got)
		w.WriteHeader(http.StatusCreated)
	})

	s := newTestSession(t, m.URL)
	var last int64
	progress := transport.NewProgress(transport.UnknownTotal, func(cur, total int64) {
		last = cur
	})
	_, err := s.VFolder("mydata").Upload(context.Background(),
		[]string{filepath.Join(base, "a.txt"), filepath.Join(base, "sub", "b.txt")}, base, progress)
	require.NoError(t, err)

	cur, total := progress.Snapshot()
	assert.Equal(t, int64(400), total)
	assert.Equal(t, int64(400), cur)
	assert.Equal(t, int64(400), last)
}

func TestVFolderUploadRejectsOutsideBase(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	m := newFakeManager(t)
	s := newTestSession(t, m.URL)
	_, err := s.VFolder("mydata").Upload(context.Background(), []string{outside}, base, nil)
	require.Error(t, err)
	assert.True(t, clienterrors.IsCode(err, clienterrors.CodePathOutsideBase), "got %v", err)
	assert.Equal(t, int64(0), m.requests.Load(), "nothing is sent")
}

func TestVFolderUploadMissingFile(t *testing.T) {
	base := t.TempDir()
	m := newFakeManager(t)
	s := newTestSession(t, m.URL)

	_, err := s.VFolder("mydata").Upload(context.Background(), []string{filepath.Join(base, "nope")}, base, nil)
	require.Error(t, err)
	assert.True(t, clienterrors.IsCode(err, clienterrors.CodeInvalidParameter))
	assert.Equal(t, int64(0), m.requests.Load())
}

func TestVFolderDownload(t *testing.T) {
	files := map[string]string{"a.csv": "1,2,3\n", "b.csv": "4,5,6,7\n"}
	m := newFakeManager(t)
	m.mux.HandleFunc("GET /folders/{name}/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []interface{}{"a.csv", "b.csv"}, decodeBody(t, r)["files"])

		mw := multipart.NewWriter(w)
		w.Header().Set(protocol.HeaderContentType, mw.FormDataContentType())
		w.Header().Set(protocol.HeaderTotalPayloadsLength, strconv.Itoa(len(files["a.csv"])+len(files["b.csv"])))
		w.WriteHeader(http.StatusOK)
		for _, name := range []string{"a.csv", "b.csv"} {
			part, err := mw.CreateFormFile("file", name)
			require.NoError(t, err)
			_, _ = io.WriteString(part, files[name])
		}
		_ = mw.Close()
	})

	dest := t.TempDir()
	s := newTestSession(t, m.URL)
	progress := transport.NewProgress(transport.UnknownTotal, nil)
	result, err := s.VFolder("mydata").Download(context.Background(), []string{"a.csv", "b.csv"}, dest, progress)
	require.NoError(t, err)
	require.Len(t, result.Files, 2)

	for name, content := range files {
		data, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	}
	cur, total := progress.Snapshot()
	assert.Equal(t, int64(14), total)
	assert.Equal(t, int64(14), cur)
}

func TestVFolderAPIErrorCarriesBody(t *testing.T) {
	m := newFakeManager(t)
	m.mux.HandleFunc("GET /folders/{name}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"title": "No such vfolder"})
	})

	_, err := newTestSession(t, m.URL).VFolder("ghost").Info(context.Background())
	require.Error(t, err)
	data, ok := clienterrors.APIErrorDataOf(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, data.Status)
	assert.Contains(t, string(data.Body), "No such vfolder")
}
