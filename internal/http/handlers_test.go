package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

// startVault runs the server behind httptest and returns a client for it.
func startVault(t *testing.T) (*waifuvault.Client, *Server) {
	t.Helper()

	var router http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	container := setupTestContainer()
	container.Config.Server.PublicURL = ts.URL
	server, err := NewServer(container)
	require.NoError(t, err)
	router = server.GetRouter()

	client := waifuvault.NewClient(waifuvault.WithBaseURL(ts.URL+"/rest"), waifuvault.WithHTTPClient(ts.Client()))
	return client, server
}

func TestUploadModifyAndDownload(t *testing.T) {
	client, _ := startVault(t)
	ctx := context.Background()
	payload := bytes.Repeat([]byte{0xAB}, 16*1024)

	entry, err := client.UploadFile(ctx, waifuvault.NewBytesUpload(payload, "x.bin"))
	require.NoError(t, err)
	require.NotNil(t, entry.Options)
	assert.False(t, entry.Options.Protected)
	assert.False(t, entry.Options.OneTimeDownload)
	assert.False(t, entry.Options.HideFilename)
	assert.True(t, strings.HasSuffix(entry.URL, "/x.bin"))

	updated, err := client.UpdateFile(ctx, waifuvault.NewModificationRequest(entry.Token).Password("hunter2"))
	require.NoError(t, err)
	assert.True(t, updated.Options.Protected)

	info, err := client.FileInfo(ctx, waifuvault.NewGetRequest(entry.Token).WithFormatted(true))
	require.NoError(t, err)
	assert.True(t, info.Options.Protected)
	assert.False(t, info.Options.HideFilename)
	assert.True(t, info.RetentionPeriod.IsFormatted)
	assert.Contains(t, info.RetentionPeriod.Formatted, "days")

	_, err = client.DownloadFile(ctx, entry.URL, "")
	assert.ErrorIs(t, err, waifuvault.ErrPasswordRequired)

	_, err = client.DownloadFile(ctx, entry.URL, "wrong")
	assert.ErrorIs(t, err, waifuvault.ErrPasswordIncorrect)

	data, err := client.DownloadFile(ctx, entry.URL, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	info, err = client.FileInfo(ctx, waifuvault.NewGetRequest(entry.Token))
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Views)
	assert.False(t, info.RetentionPeriod.IsFormatted)

	_, err = client.UpdateFile(ctx, waifuvault.NewModificationRequest(entry.Token).Password("new"))
	var ae *waifuvault.APIError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusBadRequest, ae.Status)

	_, err = client.UpdateFile(ctx, waifuvault.NewModificationRequest(entry.Token).Password("new").PreviousPassword("hunter2"))
	require.NoError(t, err)

	ok, err := client.DeleteFile(ctx, entry.Token)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = client.FileInfo(ctx, waifuvault.NewGetRequest(entry.Token))
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "NOT_FOUND", ae.Name)
	assert.Equal(t, http.StatusNotFound, ae.Status)
}

func TestUploadOptions(t *testing.T) {
	client, _ := startVault(t)
	ctx := context.Background()

	entry, err := client.UploadFile(ctx, waifuvault.NewBytesUpload([]byte("hello"), "greeting.txt").
		HideFilename(true).
		Expires("10m"))
	require.NoError(t, err)
	assert.True(t, entry.Options.HideFilename)
	assert.False(t, entry.Options.OneTimeDownload)
	assert.NotContains(t, entry.URL, "greeting")
	assert.LessOrEqual(t, entry.RetentionPeriod.Millis, int64(10*60*1000))

	once, err := client.UploadFile(ctx, waifuvault.NewBytesUpload([]byte("bye"), "once.txt").OneTimeDownload(true))
	require.NoError(t, err)
	assert.True(t, once.Options.OneTimeDownload)
	assert.False(t, once.Options.HideFilename)

	_, err = client.DownloadFile(ctx, once.URL, "")
	require.NoError(t, err)
	_, err = client.DownloadFile(ctx, once.URL, "")
	assert.Equal(t, http.StatusNotFound, waifuvault.StatusCode(err))
}

func TestUploadRejectedByService(t *testing.T) {
	client, _ := startVault(t)
	ctx := context.Background()

	_, err := client.UploadFile(ctx, waifuvault.NewBytesUpload([]byte("x"), "x").Expires("1w"))
	var ae *waifuvault.APIError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusBadRequest, ae.Status)

	_, err = client.UploadFile(ctx, waifuvault.NewBytesUpload([]byte("x"), "x").Bucket("no-such-bucket"))
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusNotFound, ae.Status)
}

func TestURLUpload(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/cat.png" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	}))
	t.Cleanup(origin.Close)

	client, _ := startVault(t)
	ctx := context.Background()

	entry, err := client.UploadFile(ctx, waifuvault.NewURLUpload(origin.URL+"/images/cat.png"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(entry.URL, "/cat.png"))

	data, err := client.DownloadFile(ctx, entry.URL, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nfake"), data)

	_, err = client.UploadFile(ctx, waifuvault.NewURLUpload(origin.URL+"/missing.png"))
	assert.Equal(t, http.StatusBadRequest, waifuvault.StatusCode(err))
}

func TestBucketAndAlbumLifecycle(t *testing.T) {
	client, _ := startVault(t)
	ctx := context.Background()

	bucket, err := client.CreateBucket(ctx)
	require.NoError(t, err)
	assert.Empty(t, bucket.Files)

	var tokens []string
	for _, name := range []string{"one.txt", "two.txt"} {
		entry, err := client.UploadFile(ctx, waifuvault.NewBytesUpload([]byte(name), name).Bucket(bucket.Token))
		require.NoError(t, err)
		require.NotNil(t, entry.Bucket)
		assert.Equal(t, bucket.Token, *entry.Bucket)
		tokens = append(tokens, entry.Token)
	}

	bucket, err = client.GetBucket(ctx, bucket.Token)
	require.NoError(t, err)
	assert.Len(t, bucket.Files, 2)

	album, err := client.CreateAlbum(ctx, bucket.Token, "holiday")
	require.NoError(t, err)
	assert.Equal(t, "holiday", album.Name)
	assert.Equal(t, bucket.Token, album.BucketToken)

	album, err = client.AssociateFiles(ctx, album.Token, tokens)
	require.NoError(t, err)
	assert.Len(t, album.Files, 2)

	info, err := client.FileInfo(ctx, waifuvault.NewGetRequest(tokens[0]))
	require.NoError(t, err)
	require.NotNil(t, info.Album)
	assert.Equal(t, album.Token, info.Album.Token)

	msg, err := client.ShareAlbum(ctx, album.Token)
	require.NoError(t, err)
	assert.True(t, msg.Success)
	assert.Contains(t, msg.Description, "/album/")

	album, err = client.GetAlbum(ctx, album.Token)
	require.NoError(t, err)
	require.NotNil(t, album.PublicToken)

	msg, err = client.RevokeAlbum(ctx, album.Token)
	require.NoError(t, err)
	assert.True(t, msg.Success)

	archive, err := client.DownloadAlbum(ctx, album.Token, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"one.txt": "one.txt", "two.txt": "two.txt"}, unzip(t, archive))

	archive, err = client.DownloadAlbum(ctx, album.Token, []int{1})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"two.txt": "two.txt"}, unzip(t, archive))

	album, err = client.DisassociateFiles(ctx, album.Token, tokens[:1])
	require.NoError(t, err)
	assert.Len(t, album.Files, 1)

	msg, err = client.DeleteAlbum(ctx, album.Token, false)
	require.NoError(t, err)
	assert.True(t, msg.Success)

	bucket, err = client.GetBucket(ctx, bucket.Token)
	require.NoError(t, err)
	assert.Len(t, bucket.Files, 2)
	assert.Empty(t, bucket.Albums)

	ok, err := client.DeleteBucket(ctx, bucket.Token)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = client.GetBucket(ctx, bucket.Token)
	assert.Equal(t, http.StatusNotFound, waifuvault.StatusCode(err))
	_, err = client.FileInfo(ctx, waifuvault.NewGetRequest(tokens[1]))
	assert.Equal(t, http.StatusNotFound, waifuvault.StatusCode(err))
}
