package waifuvault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapFS map[string][]byte

func (m mapFS) ReadFile(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return data, nil
}

type multipartBody struct {
	filename    string
	fileData    []byte
	partType    string
	password    string
	hasPassword bool
}

func parseMultipart(t *testing.T, r *Request) multipartBody {
	t.Helper()

	mediaType, params, err := mime.ParseMediaType(r.ContentType())
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	var out multipartBody
	reader := multipart.NewReader(bytes.NewReader(r.Body), params["boundary"])
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		data, err := io.ReadAll(part)
		require.NoError(t, err)

		switch part.FormName() {
		case "file":
			out.filename = part.FileName()
			out.fileData = data
			out.partType = part.Header.Get("Content-Type")
		case "password":
			out.password = string(data)
			out.hasPassword = true
		default:
			t.Fatalf("unexpected part %q", part.FormName())
		}
	}
	return out
}

func TestUploadRequestIsImmutable(t *testing.T) {
	base := NewUploadRequest().Password("a")
	withFile := base.File("/tmp/a")
	withURL := base.URL("https://example.com/x")

	assert.Empty(t, base.Sources())
	assert.Equal(t, []Source{FileSource{Path: "/tmp/a"}}, withFile.Sources())
	assert.Equal(t, []Source{URLSource{URL: "https://example.com/x"}}, withURL.Sources())
}

func TestBuildUploadSourceCount(t *testing.T) {
	b := NewBuilder(mapFS{"/data/a.txt": []byte("a")})

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{name: "no source", req: NewUploadRequest().Password("x")},
		{name: "file and url", req: NewFileUpload("/data/a.txt").URL("https://example.com/a")},
		{name: "url and bytes", req: NewURLUpload("https://example.com/a").Bytes([]byte("b"), "b.bin")},
		{name: "all three", req: NewFileUpload("/data/a.txt").URL("https://example.com").Bytes(nil, "c")},
		{name: "same source twice", req: NewBytesUpload([]byte("a"), "a").Bytes([]byte("b"), "b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := b.Upload(tt.req)
			assert.Nil(t, r)

			var be *BuildError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, "upload", be.Op)
		})
	}
}

func TestBuildUploadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello vault"), 0644))

	r, err := NewBuilder(nil).Upload(NewFileUpload(path).Password("secret"))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, r.Method)
	assert.Equal(t, "/", r.Path)

	body := parseMultipart(t, r)
	assert.Equal(t, "report.txt", body.filename)
	assert.Equal(t, []byte("hello vault"), body.fileData)
	assert.Equal(t, "text/plain; charset=utf-8", body.partType)
	assert.True(t, body.hasPassword)
	assert.Equal(t, "secret", body.password)
}

func TestBuildUploadUnreadableFile(t *testing.T) {
	r, err := NewBuilder(mapFS{}).Upload(NewFileUpload("/missing/file.bin"))
	assert.Nil(t, r)

	var be *BuildError
	require.True(t, errors.As(err, &be))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestBuildUploadInvalidPaths(t *testing.T) {
	b := NewBuilder(mapFS{})
	for _, p := range []string{"", "   ", "/"} {
		_, err := b.Upload(NewFileUpload(p))
		var be *BuildError
		assert.True(t, errors.As(err, &be), "path %q", p)
	}
}

func TestBuildUploadFromURL(t *testing.T) {
	b := NewBuilder(nil)

	t.Run("without password", func(t *testing.T) {
		r, err := b.Upload(NewURLUpload("https://example.com/cat.png"))
		require.NoError(t, err)
		assert.Equal(t, contentTypeForm, r.ContentType())

		form, err := url.ParseQuery(string(r.Body))
		require.NoError(t, err)
		assert.Equal(t, url.Values{"url": {"https://example.com/cat.png"}}, form)
	})

	t.Run("with password", func(t *testing.T) {
		r, err := b.Upload(NewURLUpload("https://example.com/cat.png").Password("pw"))
		require.NoError(t, err)

		form, err := url.ParseQuery(string(r.Body))
		require.NoError(t, err)
		assert.Equal(t, "pw", form.Get("password"))
		assert.Equal(t, "https://example.com/cat.png", form.Get("url"))
	})

	t.Run("empty url", func(t *testing.T) {
		_, err := b.Upload(NewURLUpload(""))
		var be *BuildError
		assert.True(t, errors.As(err, &be))
	})
}

func TestBuildUploadFromBytes(t *testing.T) {
	// the filesystem must not be touched for raw bytes
	b := NewBuilder(mapFS{})
	data := bytes.Repeat([]byte{0x00, 0xff}, 8192)

	r, err := b.Upload(NewBytesUpload(data, "x.bin"))
	require.NoError(t, err)

	body := parseMultipart(t, r)
	assert.Equal(t, "x.bin", body.filename)
	assert.Equal(t, data, body.fileData)
	assert.False(t, body.hasPassword)

	_, err = b.Upload(NewBytesUpload(data, ""))
	var be *BuildError
	assert.True(t, errors.As(err, &be))
}

func TestBuildUploadQuery(t *testing.T) {
	b := NewBuilder(nil)

	r, err := b.Upload(NewBytesUpload([]byte("x"), "x"))
	require.NoError(t, err)
	assert.Equal(t, url.Values{
		"hide_filename":     {"false"},
		"one_time_download": {"false"},
	}, r.Query)

	r, err = b.Upload(NewBytesUpload([]byte("x"), "x").HideFilename(true).Expires("1h"))
	require.NoError(t, err)
	assert.Equal(t, "true", r.Query.Get("hide_filename"))
	assert.Equal(t, "false", r.Query.Get("one_time_download"))
	assert.Equal(t, "1h", r.Query.Get("expires"))

	r, err = b.Upload(NewBytesUpload([]byte("x"), "x").OneTimeDownload(true))
	require.NoError(t, err)
	assert.Equal(t, "false", r.Query.Get("hide_filename"))
	assert.Equal(t, "true", r.Query.Get("one_time_download"))
}

func TestBuildUploadBucketPrefix(t *testing.T) {
	r, err := NewBuilder(nil).Upload(NewBytesUpload([]byte("x"), "x").Bucket("bucket-1"))
	require.NoError(t, err)
	assert.Equal(t, "/bucket-1", r.Path)

	u, err := r.URL("https://waifuvault.moe/rest")
	require.NoError(t, err)
	assert.Equal(t, "/rest/bucket-1", u.Path)
}

func TestBuildModifyOmitsUnsetFields(t *testing.T) {
	b := NewBuilder(nil)

	tests := []struct {
		name string
		req  ModificationRequest
		want string
	}{
		{name: "nothing", req: NewModificationRequest("t"), want: `{}`},
		{name: "hide only", req: NewModificationRequest("t").HideFilename(true), want: `{"hideFilename":true}`},
		{name: "hide false is still sent", req: NewModificationRequest("t").HideFilename(false), want: `{"hideFilename":false}`},
		{name: "password only", req: NewModificationRequest("t").Password("new"), want: `{"password":"new"}`},
		{
			name: "everything",
			req:  NewModificationRequest("t").Password("new").PreviousPassword("old").CustomExpiry("5m").HideFilename(true),
			want: `{"password":"new","previousPassword":"old","customExpiry":"5m","hideFilename":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := b.Modify(tt.req)
			require.NoError(t, err)
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "/t", r.Path)
			assert.Equal(t, contentTypeJSON, r.ContentType())
			assert.JSONEq(t, tt.want, string(r.Body))
		})
	}
}

func TestBuildEmptyTokens(t *testing.T) {
	b := NewBuilder(nil)
	calls := map[string]func() (*Request, error){
		"info":         func() (*Request, error) { return b.FileInfo(NewGetRequest("")) },
		"modify":       func() (*Request, error) { return b.Modify(NewModificationRequest(" ")) },
		"delete":       func() (*Request, error) { return b.DeleteFile("") },
		"get bucket":   func() (*Request, error) { return b.GetBucket("") },
		"del bucket":   func() (*Request, error) { return b.DeleteBucket("") },
		"create album": func() (*Request, error) { return b.CreateAlbum("", "n") },
		"get album":    func() (*Request, error) { return b.GetAlbum("") },
		"share":        func() (*Request, error) { return b.ShareAlbum("") },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			_, err := call()
			var be *BuildError
			assert.True(t, errors.As(err, &be))
		})
	}
}

func TestBuildBucketAndAlbumRequests(t *testing.T) {
	b := NewBuilder(nil)

	r := b.CreateBucket()
	assert.Equal(t, http.MethodGet, r.Method)
	assert.Equal(t, "/bucket/create", r.Path)

	r, err := b.GetBucket("b-1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, r.Method)
	assert.JSONEq(t, `{"bucket_token":"b-1"}`, string(r.Body))

	r, err = b.CreateAlbum("b-1", "trip")
	require.NoError(t, err)
	assert.Equal(t, "/album/b-1", r.Path)
	assert.JSONEq(t, `{"name":"trip"}`, string(r.Body))

	r, err = b.AssociateFiles("a-1", []string{"f-1", "f-2"})
	require.NoError(t, err)
	assert.Equal(t, "/album/a-1/associate", r.Path)
	assert.JSONEq(t, `{"fileTokens":["f-1","f-2"]}`, string(r.Body))

	_, err = b.DisassociateFiles("a-1", nil)
	var be *BuildError
	assert.True(t, errors.As(err, &be))

	r, err = b.DeleteAlbum("a-1", true)
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, r.Method)
	assert.Equal(t, "true", r.Query.Get("deleteFiles"))

	r, err = b.RevokeAlbum("a-1")
	require.NoError(t, err)
	assert.Equal(t, "/album/revoke/a-1", r.Path)

	r, err = b.DownloadAlbum("a-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "/album/download/a-1", r.Path)
	assert.Equal(t, `[]`, string(r.Body))
}

func TestBuildDownload(t *testing.T) {
	b := NewBuilder(nil)

	r, err := b.Download("https://waifuvault.moe/f/abc/x.bin", "pw")
	require.NoError(t, err)
	assert.Equal(t, "pw", r.Header.Get("x-password"))

	req, err := r.HTTPRequest(context.Background(), "https://ignored.example")
	require.NoError(t, err)
	assert.Equal(t, "https://waifuvault.moe/f/abc/x.bin", req.URL.String())
	assert.Equal(t, "pw", req.Header.Get("x-password"))

	r, err = b.Download("https://waifuvault.moe/f/abc/x.bin", "")
	require.NoError(t, err)
	assert.Empty(t, r.Header.Get("x-password"))

	_, err = b.Download("not a url", "")
	var be *BuildError
	assert.True(t, errors.As(err, &be))
}
