package waifuvault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fileJSON = `{
		"token": "f-123",
		"url": "https://waifuvault.moe/f/f-123/x.bin",
		"bucket": "b-1",
		"views": 3,
		"retentionPeriod": 86400000,
		"options": {"hideFilename": false, "oneTimeDownload": true, "protected": false}
	}`
	albumJSON = `{
		"token": "a-1",
		"bucketToken": "b-1",
		"publicToken": null,
		"name": "holiday",
		"files": []
	}`
	bucketJSON = `{
		"token": "b-1",
		"files": [],
		"albums": [{"token": "a-1", "publicToken": null, "name": "holiday", "bucket": "b-1", "dateCreated": 1700000000000}]
	}`
	genericJSON = `{"success": true, "description": "https://waifuvault.moe/album/p-1"}`
	errorJSON   = `{"name": "NOT_FOUND", "message": "Unknown token", "status": 404}`
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Kind
	}{
		{name: "file entry", body: fileJSON, want: KindFile},
		{name: "album entry", body: albumJSON, want: KindAlbum},
		{name: "bucket entry", body: bucketJSON, want: KindBucket},
		{name: "generic message", body: genericJSON, want: KindGeneric},
		{name: "error", body: errorJSON, want: KindError},
		{name: "delete true", body: "true", want: KindDelete},
		{name: "delete false with whitespace", body: " false\n", want: KindDelete},
		{name: "album checked before bucket", body: `{"token":"a","bucketToken":"b","files":[]}`, want: KindAlbum},
		{name: "null bucketToken is absent", body: `{"token":"a","bucketToken":null,"files":[]}`, want: KindBucket},
		{name: "generic with token is not generic", body: `{"token":"t","success":true,"description":"d"}`, want: KindUnknown},
		{name: "partial error", body: `{"name":"x","message":"y"}`, want: KindUnknown},
		{name: "array", body: `[1,2]`, want: KindUnknown},
		{name: "null", body: `null`, want: KindUnknown},
		{name: "html", body: `<html>bad gateway</html>`, want: KindUnknown},
		{name: "empty", body: ``, want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify([]byte(tt.body)))
		})
	}
}

func TestDecodeFileEntry(t *testing.T) {
	env, err := Decode([]byte(fileJSON))
	require.NoError(t, err)
	require.Equal(t, KindFile, env.Kind)

	f := env.File
	assert.Equal(t, "f-123", f.Token)
	assert.Equal(t, "https://waifuvault.moe/f/f-123/x.bin", f.URL)
	require.NotNil(t, f.Bucket)
	assert.Equal(t, "b-1", *f.Bucket)
	assert.Nil(t, f.Album)
	assert.EqualValues(t, 3, f.Views)
	assert.False(t, f.RetentionPeriod.IsFormatted)
	assert.EqualValues(t, 86400000, f.RetentionPeriod.Millis)
	require.NotNil(t, f.Options)
	assert.Equal(t, FileOptions{OneTimeDownload: true}, *f.Options)
}

func TestDecodeAlbumWithFilesNeverYieldsBucket(t *testing.T) {
	body := `{"token":"a-9","bucketToken":"b-9","name":"n","files":[` + fileJSON + `]}`

	env, err := Decode([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, KindAlbum, env.Kind)
	assert.Nil(t, env.Bucket)
	require.NotNil(t, env.Album)
	assert.Equal(t, "b-9", env.Album.BucketToken)
	require.Len(t, env.Album.Files, 1)
	assert.Equal(t, "f-123", env.Album.Files[0].Token)
}

func TestDecodeBucketAlbums(t *testing.T) {
	env, err := Decode([]byte(bucketJSON))
	require.NoError(t, err)
	require.Len(t, env.Bucket.Albums, 1)

	meta := env.Bucket.Albums[0]
	assert.Equal(t, "holiday", meta.Name)
	assert.Nil(t, meta.PublicToken)
	assert.EqualValues(t, 1700000000000, meta.Created().UnixMilli())
}

func TestDecodeErrorPreservesFields(t *testing.T) {
	env, err := Decode([]byte(errorJSON))
	require.NoError(t, err)
	require.Equal(t, KindError, env.Kind)

	assert.Equal(t, "NOT_FOUND", env.Err.Name)
	assert.Equal(t, "Unknown token", env.Err.Message)
	assert.Equal(t, 404, env.Err.Status)
}

func TestDecodeMalformed(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	_, err := Decode(body)

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindUnknown, pe.Kind)
	assert.Equal(t, body, pe.Body)
	assert.Contains(t, err.Error(), "malformed response")
}

func TestDecodeShapeWithWrongTypes(t *testing.T) {
	_, err := Decode([]byte(`{"token":"t","url":"u","views":"many","retentionPeriod":1}`))

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindFile, pe.Kind)
}

func TestExpect(t *testing.T) {
	t.Run("allowed kind", func(t *testing.T) {
		env, err := Decode([]byte(fileJSON))
		require.NoError(t, err)
		assert.NoError(t, env.Expect("upload", KindFile))
	})

	t.Run("service error propagates", func(t *testing.T) {
		env, err := Decode([]byte(errorJSON))
		require.NoError(t, err)

		err = env.Expect("upload", KindFile)
		var ae *APIError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, 404, ae.Status)
		assert.Equal(t, 404, StatusCode(err))
	})

	t.Run("bucket at upload endpoint", func(t *testing.T) {
		env, err := Decode([]byte(bucketJSON))
		require.NoError(t, err)

		err = env.Expect("upload", KindFile)
		var pe *ProtocolError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "upload", pe.Endpoint)
		assert.Equal(t, KindBucket, pe.Kind)
		assert.Contains(t, err.Error(), "got bucket entry, want file entry")
	})
}
