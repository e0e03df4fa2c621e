// Package waifuvault is a client for the WaifuVault file hosting service.
//
// Requests are described with UploadRequest, GetRequest and
// ModificationRequest, rendered by a Builder, and every JSON reply is run
// through Decode, which classifies the service's untagged response envelope
// before the calling endpoint checks that the kind it got is one it accepts.
package waifuvault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the public WaifuVault REST endpoint.
	DefaultBaseURL = "https://waifuvault.moe/rest"
	defaultTimeout = 30 * time.Second
)

// Client represents a WaifuVault API client. It is safe for concurrent use;
// the only shared state is the underlying http.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	builder    *Builder
	logger     *logrus.Logger
}

var _ ClientAPI = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another service instance.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient replaces the transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-request timeout. A client passed through
// WithHTTPClient is copied, never modified.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = timeout
		c.httpClient = &hc
	}
}

// WithLogger enables debug logging of every call.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFileSystem replaces the filesystem used to read upload files.
func WithFileSystem(fsys FileSystem) Option {
	return func(c *Client) {
		c.builder = NewBuilder(fsys)
	}
}

// NewClient creates a new WaifuVault client
func NewClient(opts ...Option) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		builder: NewBuilder(nil),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the REST endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// do sends req and reads the whole body.
func (c *Client) do(ctx context.Context, req *Request) (*response, error) {
	httpReq, err := req.HTTPRequest(ctx, c.baseURL)
	if err != nil {
		return nil, &BuildError{Op: req.Op, Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: req.Op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: req.Op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}

	c.logger.WithFields(logrus.Fields{
		"op":       req.Op,
		"method":   httpReq.Method,
		"url":      httpReq.URL.Redacted(),
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("waifuvault call")

	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// call sends req and returns its envelope, narrowed to the allowed kinds.
func (c *Client) call(ctx context.Context, req *Request, allowed ...Kind) (*Envelope, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	env, err := Decode(resp.body)
	if err != nil {
		if !resp.ok() {
			return nil, unexpectedStatus(req.Op, resp)
		}
		var pe *ProtocolError
		if errors.As(err, &pe) {
			pe.Endpoint = req.Op
		}
		return nil, err
	}

	if err := env.Expect(req.Op, allowed...); err != nil {
		return nil, err
	}
	return env, nil
}

func unexpectedStatus(op string, resp *response) *TransportError {
	return &TransportError{
		Op:         op,
		StatusCode: resp.status,
		RetryAfter: parseRetryAfter(resp.header.Get("Retry-After")),
		Err:        fmt.Errorf("%s: %s", http.StatusText(resp.status), describeBody(resp.body)),
	}
}

// raw returns the body of a binary endpoint. Failures are decoded as the
// standard error envelope when possible.
func (c *Client) raw(ctx context.Context, req *Request, onForbidden func() error) ([]byte, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusOK:
		return resp.body, nil
	case resp.status == http.StatusForbidden && onForbidden != nil:
		return nil, onForbidden()
	}

	if env, err := Decode(resp.body); err == nil && env.Kind == KindError {
		return nil, env.Err
	}
	return nil, unexpectedStatus(req.Op, resp)
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if d := time.Until(ts); d > 0 {
			return d
		}
	}
	return 0
}

// CreateBucket creates a new empty bucket
func (c *Client) CreateBucket(ctx context.Context) (*BucketEntry, error) {
	env, err := c.call(ctx, c.builder.CreateBucket(), KindBucket)
	if err != nil {
		return nil, err
	}
	return env.Bucket, nil
}

// GetBucket returns a bucket and its files
func (c *Client) GetBucket(ctx context.Context, token string) (*BucketEntry, error) {
	req, err := c.builder.GetBucket(token)
	if err != nil {
		return nil, err
	}
	env, err := c.call(ctx, req, KindBucket)
	if err != nil {
		return nil, err
	}
	return env.Bucket, nil
}

// DeleteBucket deletes a bucket and everything in it
func (c *Client) DeleteBucket(ctx context.Context, token string) (bool, error) {
	req, err := c.builder.DeleteBucket(token)
	if err != nil {
		return false, err
	}
	return c.deleted(ctx, req)
}

// UploadFile uploads content described by req
func (c *Client) UploadFile(ctx context.Context, req UploadRequest) (*FileEntry, error) {
	r, err := c.builder.Upload(req)
	if err != nil {
		return nil, err
	}
	return c.file(ctx, r)
}

// FileInfo retrieves information about a stored file
func (c *Client) FileInfo(ctx context.Context, req GetRequest) (*FileEntry, error) {
	r, err := c.builder.FileInfo(req)
	if err != nil {
		return nil, err
	}
	return c.file(ctx, r)
}

// UpdateFile changes the password, expiry or hide-filename flag of a file
func (c *Client) UpdateFile(ctx context.Context, req ModificationRequest) (*FileEntry, error) {
	r, err := c.builder.Modify(req)
	if err != nil {
		return nil, err
	}
	return c.file(ctx, r)
}

// DeleteFile deletes a stored file
func (c *Client) DeleteFile(ctx context.Context, token string) (bool, error) {
	req, err := c.builder.DeleteFile(token)
	if err != nil {
		return false, err
	}
	return c.deleted(ctx, req)
}

// DownloadFile fetches the content at fileURL. A 403 reply is reported as
// ErrPasswordIncorrect when a password was given, ErrPasswordRequired
// otherwise.
func (c *Client) DownloadFile(ctx context.Context, fileURL, password string) ([]byte, error) {
	req, err := c.builder.Download(fileURL, password)
	if err != nil {
		return nil, err
	}
	return c.raw(ctx, req, func() error {
		if password != "" {
			return forbidden(ErrPasswordIncorrect)
		}
		return forbidden(ErrPasswordRequired)
	})
}

// CreateAlbum creates an album in the given bucket
func (c *Client) CreateAlbum(ctx context.Context, bucketToken, name string) (*AlbumEntry, error) {
	req, err := c.builder.CreateAlbum(bucketToken, name)
	if err != nil {
		return nil, err
	}
	return c.album(ctx, req)
}

// AssociateFiles adds files to an album
func (c *Client) AssociateFiles(ctx context.Context, albumToken string, fileTokens []string) (*AlbumEntry, error) {
	req, err := c.builder.AssociateFiles(albumToken, fileTokens)
	if err != nil {
		return nil, err
	}
	return c.album(ctx, req)
}

// DisassociateFiles removes files from an album
func (c *Client) DisassociateFiles(ctx context.Context, albumToken string, fileTokens []string) (*AlbumEntry, error) {
	req, err := c.builder.DisassociateFiles(albumToken, fileTokens)
	if err != nil {
		return nil, err
	}
	return c.album(ctx, req)
}

// DeleteAlbum deletes an album. When deleteFiles is set its files are
// removed from the bucket as well.
func (c *Client) DeleteAlbum(ctx context.Context, albumToken string, deleteFiles bool) (*GenericMessage, error) {
	req, err := c.builder.DeleteAlbum(albumToken, deleteFiles)
	if err != nil {
		return nil, err
	}
	return c.generic(ctx, req)
}

// GetAlbum returns an album and its files
func (c *Client) GetAlbum(ctx context.Context, albumToken string) (*AlbumEntry, error) {
	req, err := c.builder.GetAlbum(albumToken)
	if err != nil {
		return nil, err
	}
	return c.album(ctx, req)
}

// ShareAlbum makes an album public. The description of the returned message
// holds the public URL.
func (c *Client) ShareAlbum(ctx context.Context, albumToken string) (*GenericMessage, error) {
	req, err := c.builder.ShareAlbum(albumToken)
	if err != nil {
		return nil, err
	}
	return c.generic(ctx, req)
}

// RevokeAlbum removes public access to an album
func (c *Client) RevokeAlbum(ctx context.Context, albumToken string) (*GenericMessage, error) {
	req, err := c.builder.RevokeAlbum(albumToken)
	if err != nil {
		return nil, err
	}
	return c.generic(ctx, req)
}

// DownloadAlbum returns a zip archive of the selected album files, or of
// every file when fileIDs is empty.
func (c *Client) DownloadAlbum(ctx context.Context, albumToken string, fileIDs []int) ([]byte, error) {
	req, err := c.builder.DownloadAlbum(albumToken, fileIDs)
	if err != nil {
		return nil, err
	}
	return c.raw(ctx, req, nil)
}

func (c *Client) file(ctx context.Context, req *Request) (*FileEntry, error) {
	env, err := c.call(ctx, req, KindFile)
	if err != nil {
		return nil, err
	}
	return env.File, nil
}

func (c *Client) album(ctx context.Context, req *Request) (*AlbumEntry, error) {
	env, err := c.call(ctx, req, KindAlbum)
	if err != nil {
		return nil, err
	}
	return env.Album, nil
}

func (c *Client) generic(ctx context.Context, req *Request) (*GenericMessage, error) {
	env, err := c.call(ctx, req, KindGeneric)
	if err != nil {
		return nil, err
	}
	return env.Generic, nil
}

func (c *Client) deleted(ctx context.Context, req *Request) (bool, error) {
	env, err := c.call(ctx, req, KindDelete)
	if err != nil {
		return false, err
	}
	return env.Deleted, nil
}
