package waifuvault

import "context"

// ClientAPI defines the operations offered by the WaifuVault service.
// It mirrors the concrete client so it can be mocked in tests.
type ClientAPI interface {
	CreateBucket(ctx context.Context) (*BucketEntry, error)
	GetBucket(ctx context.Context, token string) (*BucketEntry, error)
	DeleteBucket(ctx context.Context, token string) (bool, error)

	UploadFile(ctx context.Context, req UploadRequest) (*FileEntry, error)
	FileInfo(ctx context.Context, req GetRequest) (*FileEntry, error)
	UpdateFile(ctx context.Context, req ModificationRequest) (*FileEntry, error)
	DeleteFile(ctx context.Context, token string) (bool, error)
	DownloadFile(ctx context.Context, fileURL, password string) ([]byte, error)

	CreateAlbum(ctx context.Context, bucketToken, name string) (*AlbumEntry, error)
	AssociateFiles(ctx context.Context, albumToken string, fileTokens []string) (*AlbumEntry, error)
	DisassociateFiles(ctx context.Context, albumToken string, fileTokens []string) (*AlbumEntry, error)
	DeleteAlbum(ctx context.Context, albumToken string, deleteFiles bool) (*GenericMessage, error)
	GetAlbum(ctx context.Context, albumToken string) (*AlbumEntry, error)
	ShareAlbum(ctx context.Context, albumToken string) (*GenericMessage, error)
	RevokeAlbum(ctx context.Context, albumToken string) (*GenericMessage, error)
	DownloadAlbum(ctx context.Context, albumToken string, fileIDs []int) ([]byte, error)
}
