package waifuvault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	errNoSource    = errors.New("need either a file, url, or bytes to upload")
	errEmptyToken  = errors.New("token must not be empty")
	quoteEscaper   = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
	contentTypeKey = http.CanonicalHeaderKey("Content-Type")
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
	passwordHeader  = "x-password"
)

// FileSystem is the read-only view of local storage used for file uploads.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
}

type osFileSystem struct{}

func (osFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Request is a rendered, transport-neutral HTTP call.
type Request struct {
	// Op names the endpoint, used in errors and logs.
	Op     string
	Method string
	// Path is relative to the service base URL. It is ignored when
	// AbsoluteURL is set.
	Path        string
	AbsoluteURL string
	Query       url.Values
	Header      http.Header
	Body        []byte
}

// ContentType returns the Content-Type header of the request body.
func (r *Request) ContentType() string {
	return r.Header.Get(contentTypeKey)
}

// URL resolves the request against baseURL.
func (r *Request) URL(baseURL string) (*url.URL, error) {
	raw := r.AbsoluteURL
	if raw == "" {
		raw = strings.TrimRight(baseURL, "/") + r.Path
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// HTTPRequest converts r into an *http.Request bound to ctx.
func (r *Request) HTTPRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	u, err := r.URL(baseURL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Builder renders request descriptions into Requests. It holds no state
// besides its filesystem and is safe for concurrent use.
type Builder struct {
	fs FileSystem
}

// NewBuilder returns a Builder reading upload files through fsys. A nil fsys
// reads from the operating system.
func NewBuilder(fsys FileSystem) *Builder {
	if fsys == nil {
		fsys = osFileSystem{}
	}
	return &Builder{fs: fsys}
}

func newRequest(op, method, path string) *Request {
	return &Request{
		Op:     op,
		Method: method,
		Path:   path,
		Query:  url.Values{},
		Header: http.Header{},
	}
}

func (r *Request) setJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Body = data
	r.Header.Set(contentTypeKey, contentTypeJSON)
	return nil
}

func (r *Request) setMultipart(filename string, data []byte, password string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set(contentTypeKey, mimetype.Detect(data).String())
	part, err := writer.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}

	if password != "" {
		if err := writer.WriteField("password", password); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	r.Body = buf.Bytes()
	r.Header.Set(contentTypeKey, writer.FormDataContentType())
	return nil
}

func (r *Request) setForm(form url.Values) {
	r.Body = []byte(form.Encode())
	r.Header.Set(contentTypeKey, contentTypeForm)
}

func tokenPath(op, prefix, token, suffix string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", &BuildError{Op: op, Err: errEmptyToken}
	}
	return prefix + url.PathEscape(token) + suffix, nil
}

// Upload renders an upload. Exactly one content source must be set; files
// are read from disk here, so an unreadable file fails before any request
// exists.
func (b *Builder) Upload(req UploadRequest) (*Request, error) {
	const op = "upload"

	switch n := len(req.sources); {
	case n == 0:
		return nil, &BuildError{Op: op, Err: errNoSource}
	case n > 1:
		return nil, &BuildError{Op: op, Err: fmt.Errorf("%d content sources set, need exactly one", n)}
	}

	path := "/"
	if req.bucket != "" {
		path = "/" + url.PathEscape(req.bucket)
	}

	r := newRequest(op, http.MethodPut, path)
	r.Query.Set("hide_filename", strconv.FormatBool(req.hideFilename))
	r.Query.Set("one_time_download", strconv.FormatBool(req.oneTimeDownload))
	if req.expires != "" {
		r.Query.Set("expires", req.expires)
	}

	var err error
	switch src := req.sources[0].(type) {
	case FileSource:
		if strings.TrimSpace(src.Path) == "" {
			return nil, &BuildError{Op: op, Err: errors.New("file path must not be empty")}
		}
		name := filepath.Base(src.Path)
		if name == "." || name == string(filepath.Separator) {
			return nil, &BuildError{Op: op, Err: fmt.Errorf("invalid file path %q", src.Path)}
		}
		data, readErr := b.fs.ReadFile(src.Path)
		if readErr != nil {
			return nil, &BuildError{Op: op, Err: fmt.Errorf("reading file %s: %w", src.Path, readErr)}
		}
		err = r.setMultipart(name, data, req.password)

	case URLSource:
		if strings.TrimSpace(src.URL) == "" {
			return nil, &BuildError{Op: op, Err: errors.New("url must not be empty")}
		}
		form := url.Values{"url": {src.URL}}
		if req.password != "" {
			form.Set("password", req.password)
		}
		r.setForm(form)

	case BytesSource:
		if strings.TrimSpace(src.Filename) == "" {
			return nil, &BuildError{Op: op, Err: errors.New("filename is required for raw bytes")}
		}
		err = r.setMultipart(src.Filename, src.Data, req.password)

	default:
		return nil, &BuildError{Op: op, Err: fmt.Errorf("unsupported content source %T", src)}
	}
	if err != nil {
		return nil, &BuildError{Op: op, Err: err}
	}

	return r, nil
}

// FileInfo renders a file information lookup.
func (b *Builder) FileInfo(req GetRequest) (*Request, error) {
	path, err := tokenPath("file info", "/", req.Token, "")
	if err != nil {
		return nil, err
	}
	r := newRequest("file info", http.MethodGet, path)
	r.Query.Set("formatted", strconv.FormatBool(req.Formatted))
	return r, nil
}

// Modify renders a file modification. Unset fields are left out of the body.
func (b *Builder) Modify(req ModificationRequest) (*Request, error) {
	const op = "modify file"
	path, err := tokenPath(op, "/", req.token, "")
	if err != nil {
		return nil, err
	}
	r := newRequest(op, http.MethodPatch, path)
	if err := r.setJSON(req.body()); err != nil {
		return nil, &BuildError{Op: op, Err: err}
	}
	return r, nil
}

// DeleteFile renders a file deletion.
func (b *Builder) DeleteFile(token string) (*Request, error) {
	path, err := tokenPath("delete file", "/", token, "")
	if err != nil {
		return nil, err
	}
	return newRequest("delete file", http.MethodDelete, path), nil
}

// Download renders a file download. The password, if any, travels in the
// x-password header.
func (b *Builder) Download(fileURL, password string) (*Request, error) {
	const op = "download file"
	if _, err := url.ParseRequestURI(fileURL); err != nil {
		return nil, &BuildError{Op: op, Err: fmt.Errorf("invalid file url: %w", err)}
	}
	r := newRequest(op, http.MethodGet, "")
	r.AbsoluteURL = fileURL
	if password != "" {
		r.Header.Set(passwordHeader, password)
	}
	return r, nil
}

// CreateBucket renders a bucket creation.
func (b *Builder) CreateBucket() *Request {
	return newRequest("create bucket", http.MethodGet, "/bucket/create")
}

// GetBucket renders a bucket lookup.
func (b *Builder) GetBucket(token string) (*Request, error) {
	const op = "get bucket"
	if strings.TrimSpace(token) == "" {
		return nil, &BuildError{Op: op, Err: errEmptyToken}
	}
	r := newRequest(op, http.MethodPost, "/bucket/get")
	if err := r.setJSON(bucketGetBody{BucketToken: token}); err != nil {
		return nil, &BuildError{Op: op, Err: err}
	}
	return r, nil
}

// DeleteBucket renders a bucket deletion.
func (b *Builder) DeleteBucket(token string) (*Request, error) {
	path, err := tokenPath("delete bucket", "/bucket/", token, "")
	if err != nil {
		return nil, err
	}
	return newRequest("delete bucket", http.MethodDelete, path), nil
}

// CreateAlbum renders an album creation inside a bucket.
func (b *Builder) CreateAlbum(bucketToken, name string) (*Request, error) {
	const op = "create album"
	path, err := tokenPath(op, "/album/", bucketToken, "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, &BuildError{Op: op, Err: errors.New("album name must not be empty")}
	}
	r := newRequest(op, http.MethodPost, path)
	if err := r.setJSON(albumCreateBody{Name: name}); err != nil {
		return nil, &BuildError{Op: op, Err: err}
	}
	return r, nil
}

// AssociateFiles renders adding files to an album.
func (b *Builder) AssociateFiles(albumToken string, fileTokens []string) (*Request, error) {
	return b.albumFiles("associate files", albumToken, "/associate", fileTokens)
}

// DisassociateFiles renders removing files from an album.
func (b *Builder) DisassociateFiles(albumToken string, fileTokens []string) (*Request, error) {
	return b.albumFiles("disassociate files", albumToken, "/disassociate", fileTokens)
}

func (b *Builder) albumFiles(op, albumToken, suffix string, fileTokens []string) (*Request, error) {
	path, err := tokenPath(op, "/album/", albumToken, suffix)
	if err != nil {
		return nil, err
	}
	if len(fileTokens) == 0 {
		return nil, &BuildError{Op: op, Err: errors.New("at least one file token is required")}
	}
	r := newRequest(op, http.MethodPost, path)
	if err := r.setJSON(albumFilesBody{FileTokens: fileTokens}); err != nil {
		return nil, &BuildError{Op: op, Err: err}
	}
	return r, nil
}

// DeleteAlbum renders an album deletion, optionally removing its files.
func (b *Builder) DeleteAlbum(albumToken string, deleteFiles bool) (*Request, error) {
	path, err := tokenPath("delete album", "/album/", albumToken, "")
	if err != nil {
		return nil, err
	}
	r := newRequest("delete album", http.MethodDelete, path)
	r.Query.Set("deleteFiles", strconv.FormatBool(deleteFiles))
	return r, nil
}

// GetAlbum renders an album lookup.
func (b *Builder) GetAlbum(albumToken string) (*Request, error) {
	path, err := tokenPath("get album", "/album/", albumToken, "")
	if err != nil {
		return nil, err
	}
	return newRequest("get album", http.MethodGet, path), nil
}

// ShareAlbum renders making an album public.
func (b *Builder) ShareAlbum(albumToken string) (*Request, error) {
	path, err := tokenPath("share album", "/album/share/", albumToken, "")
	if err != nil {
		return nil, err
	}
	return newRequest("share album", http.MethodGet, path), nil
}

// RevokeAlbum renders revoking an album's public access.
func (b *Builder) RevokeAlbum(albumToken string) (*Request, error) {
	path, err := tokenPath("revoke album", "/album/revoke/", albumToken, "")
	if err != nil {
		return nil, err
	}
	return newRequest("revoke album", http.MethodGet, path), nil
}

// DownloadAlbum renders an album archive download. An empty fileIDs selects
// every file in the album.
func (b *Builder) DownloadAlbum(albumToken string, fileIDs []int) (*Request, error) {
	const op = "download album"
	path, err := tokenPath(op, "/album/download/", albumToken, "")
	if err != nil {
		return nil, err
	}
	if fileIDs == nil {
		fileIDs = []int{}
	}
	r := newRequest(op, http.MethodPost, path)
	if err := r.setJSON(fileIDs); err != nil {
		return nil, &BuildError{Op: op, Err: err}
	}
	return r, nil
}
