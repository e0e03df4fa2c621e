package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

const maxRemoteSize = 100 << 20

// Handler serves the WaifuVault REST API from a Store.
type Handler struct {
	store   *Store
	fetcher *http.Client
	logger  *logrus.Logger
}

// NewHandler creates a new HTTP handler. fetcher is used for URL uploads.
func NewHandler(store *Store, fetcher *http.Client, logger *logrus.Logger) *Handler {
	if fetcher == nil {
		fetcher = http.DefaultClient
	}
	return &Handler{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
	}
}

// REST dispatches every /rest request on its method and path segments.
func (h *Handler) REST(c *gin.Context) {
	parts := splitPath(c.Param("path"))

	switch {
	case c.Request.Method == http.MethodPut && len(parts) <= 1:
		bucket := ""
		if len(parts) == 1 {
			bucket = parts[0]
		}
		h.upload(c, bucket)

	case len(parts) >= 1 && parts[0] == "bucket":
		h.bucket(c, parts[1:])

	case len(parts) >= 1 && parts[0] == "album":
		h.album(c, parts[1:])

	case len(parts) == 1:
		h.file(c, parts[0])

	default:
		h.fail(c, notFound("no route for %s %s", c.Request.Method, c.Request.URL.Path))
	}
}

// Download serves /f/{id}/{name}.
func (h *Handler) Download(c *gin.Context) {
	parts := splitPath(c.Param("path"))
	if len(parts) == 0 {
		h.fail(c, notFound("file not found"))
		return
	}

	dl, err := h.store.Fetch(parts[0], c.GetHeader("x-password"))
	if err != nil {
		var se *StoreError
		if errors.As(err, &se) && se.Status == http.StatusForbidden {
			c.Status(http.StatusForbidden)
			return
		}
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", dl.Name))
	c.Data(http.StatusOK, dl.MIME, dl.Data)
}

func (h *Handler) upload(c *gin.Context, bucket string) {
	params := UploadParams{
		Bucket:  bucket,
		Expires: c.Query("expires"),
	}

	var err error
	if params.HideFilename, err = queryBool(c, "hide_filename"); err != nil {
		h.fail(c, err)
		return
	}
	if params.OneTimeDownload, err = queryBool(c, "one_time_download"); err != nil {
		h.fail(c, err)
		return
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			h.fail(c, badRequest("file is required: %v", err))
			return
		}
		f, err := header.Open()
		if err != nil {
			h.fail(c, err)
			return
		}
		defer f.Close()
		if params.Data, err = io.ReadAll(f); err != nil {
			h.fail(c, err)
			return
		}
		params.Name = header.Filename
	} else {
		remote := c.PostForm("url")
		if remote == "" {
			h.fail(c, badRequest("either a file or a url is required"))
			return
		}
		if params.Data, params.Name, err = h.fetch(c.Request.Context(), remote); err != nil {
			h.fail(c, err)
			return
		}
	}
	params.Password = c.PostForm("password")

	entry, err := h.store.Put(params)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"token":  entry.Token,
		"bucket": bucket,
		"size":   len(params.Data),
	}).Info("file uploaded")
	c.JSON(http.StatusOK, entry)
}

// fetch downloads the content of a URL upload.
func (h *Handler) fetch(ctx context.Context, remote string) ([]byte, string, error) {
	u, err := url.ParseRequestURI(remote)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", badRequest("url %q is not a valid http url", remote)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", badRequest("%v", err)
	}
	resp, err := h.fetcher.Do(req)
	if err != nil {
		return nil, "", badRequest("fetching %s: %v", remote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", badRequest("fetching %s: status %d", remote, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize+1))
	if err != nil {
		return nil, "", badRequest("fetching %s: %v", remote, err)
	}
	if len(data) > maxRemoteSize {
		return nil, "", &StoreError{Status: http.StatusRequestEntityTooLarge, Message: "remote file is too large"}
	}

	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = u.Hostname()
	}
	return data, name, nil
}

func (h *Handler) file(c *gin.Context, token string) {
	switch c.Request.Method {
	case http.MethodGet:
		formatted, err := queryBool(c, "formatted")
		if err != nil {
			h.fail(c, err)
			return
		}
		h.respond(c)(h.store.Info(token, formatted))

	case http.MethodPatch:
		var update FileUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			h.fail(c, badRequest("invalid body: %v", err))
			return
		}
		h.respond(c)(h.store.Update(token, update))

	case http.MethodDelete:
		if err := h.store.Delete(token); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, true)

	default:
		h.fail(c, &StoreError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
	}
}

func (h *Handler) bucket(c *gin.Context, parts []string) {
	method := c.Request.Method
	switch {
	case method == http.MethodGet && len(parts) == 1 && parts[0] == "create":
		c.JSON(http.StatusOK, h.store.CreateBucket())

	case method == http.MethodPost && len(parts) == 1 && parts[0] == "get":
		var body struct {
			BucketToken string `json:"bucket_token"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.BucketToken == "" {
			h.fail(c, badRequest("bucket_token is required"))
			return
		}
		h.respond(c)(h.store.Bucket(body.BucketToken))

	case method == http.MethodDelete && len(parts) == 1:
		if err := h.store.DeleteBucket(parts[0]); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, true)

	default:
		h.fail(c, notFound("no route for %s %s", method, c.Request.URL.Path))
	}
}

func (h *Handler) album(c *gin.Context, parts []string) {
	method := c.Request.Method
	switch {
	case method == http.MethodGet && len(parts) == 2 && parts[0] == "share":
		link, err := h.store.Share(parts[1])
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, waifuvault.GenericMessage{Success: true, Description: link})

	case method == http.MethodGet && len(parts) == 2 && parts[0] == "revoke":
		if err := h.store.Revoke(parts[1]); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, waifuvault.GenericMessage{Success: true, Description: "album unshared"})

	case method == http.MethodPost && len(parts) == 2 && parts[0] == "download":
		var ids []int
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&ids); err != nil {
				h.fail(c, badRequest("invalid body: %v", err))
				return
			}
		}
		archive, err := h.store.AlbumArchive(parts[1], ids)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", parts[1]+".zip"))
		c.Data(http.StatusOK, "application/zip", archive)

	case method == http.MethodPost && len(parts) == 2 && (parts[1] == "associate" || parts[1] == "disassociate"):
		var body struct {
			FileTokens []string `json:"fileTokens"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || len(body.FileTokens) == 0 {
			h.fail(c, badRequest("fileTokens is required"))
			return
		}
		if parts[1] == "associate" {
			h.respond(c)(h.store.Associate(parts[0], body.FileTokens))
		} else {
			h.respond(c)(h.store.Disassociate(parts[0], body.FileTokens))
		}

	case method == http.MethodPost && len(parts) == 1:
		var body struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			h.fail(c, badRequest("invalid body: %v", err))
			return
		}
		h.respond(c)(h.store.CreateAlbum(parts[0], body.Name))

	case method == http.MethodGet && len(parts) == 1:
		h.respond(c)(h.store.Album(parts[0]))

	case method == http.MethodDelete && len(parts) == 1:
		deleteFiles, err := queryBool(c, "deleteFiles")
		if err != nil {
			h.fail(c, err)
			return
		}
		if err := h.store.DeleteAlbum(parts[0], deleteFiles); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, waifuvault.GenericMessage{Success: true, Description: "album deleted"})

	default:
		h.fail(c, notFound("no route for %s %s", method, c.Request.URL.Path))
	}
}

// respond writes a store result as JSON, or its error envelope.
func (h *Handler) respond(c *gin.Context) func(any, error) {
	return func(v any, err error) {
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// fail writes err as a service error envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	var se *StoreError
	if !errors.As(err, &se) {
		h.logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		se = &StoreError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	c.JSON(se.Status, waifuvault.APIError{
		Name:    se.Name(),
		Message: se.Message,
		Status:  se.Status,
	})
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("%s must be true or false", key)
	}
	return v, nil
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
