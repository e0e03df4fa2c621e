package waifuvault

// Source is the content of an upload. It is one of FileSource, URLSource or
// BytesSource.
type Source interface {
	source()
}

// FileSource uploads a file read from local disk.
type FileSource struct {
	Path string
}

// URLSource asks the service to fetch a remote resource.
type URLSource struct {
	URL string
}

// BytesSource uploads an in-memory buffer under an explicit filename.
type BytesSource struct {
	Data     []byte
	Filename string
}

func (FileSource) source()  {}
func (URLSource) source()   {}
func (BytesSource) source() {}

// UploadRequest describes content to upload. It is an immutable value: every
// setter returns a modified copy. Exactly one content source must be set
// before the request is sent.
type UploadRequest struct {
	sources         []Source
	bucket          string
	expires         string
	password        string
	hideFilename    bool
	oneTimeDownload bool
}

// NewUploadRequest returns an upload request with no content source.
func NewUploadRequest() UploadRequest {
	return UploadRequest{}
}

// NewFileUpload returns an upload request for a file on disk.
func NewFileUpload(path string) UploadRequest {
	return NewUploadRequest().File(path)
}

// NewURLUpload returns an upload request for a remote URL.
func NewURLUpload(url string) UploadRequest {
	return NewUploadRequest().URL(url)
}

// NewBytesUpload returns an upload request for raw bytes.
func NewBytesUpload(data []byte, filename string) UploadRequest {
	return NewUploadRequest().Bytes(data, filename)
}

func (r UploadRequest) withSource(s Source) UploadRequest {
	sources := make([]Source, len(r.sources), len(r.sources)+1)
	copy(sources, r.sources)
	r.sources = append(sources, s)
	return r
}

// File adds a local file as content source.
func (r UploadRequest) File(path string) UploadRequest {
	return r.withSource(FileSource{Path: path})
}

// URL adds a remote URL as content source.
func (r UploadRequest) URL(url string) UploadRequest {
	return r.withSource(URLSource{URL: url})
}

// Bytes adds a raw buffer as content source, stored under filename.
func (r UploadRequest) Bytes(data []byte, filename string) UploadRequest {
	return r.withSource(BytesSource{Data: data, Filename: filename})
}

// Bucket uploads into the bucket with the given token.
func (r UploadRequest) Bucket(token string) UploadRequest {
	r.bucket = token
	return r
}

// Expires sets a custom expiry: a number followed by m, h or d. Leave it
// unset to keep the file as long as the retention policy allows.
func (r UploadRequest) Expires(expires string) UploadRequest {
	r.expires = expires
	return r
}

// Password encrypts the file; it can then only be fetched with the
// x-password header.
func (r UploadRequest) Password(password string) UploadRequest {
	r.password = password
	return r
}

// HideFilename hides the filename from the generated URL.
func (r UploadRequest) HideFilename(hide bool) UploadRequest {
	r.hideFilename = hide
	return r
}

// OneTimeDownload deletes the file after its first download.
func (r UploadRequest) OneTimeDownload(otd bool) UploadRequest {
	r.oneTimeDownload = otd
	return r
}

// Sources returns the content sources set on the request.
func (r UploadRequest) Sources() []Source {
	return append([]Source(nil), r.sources...)
}

// GetRequest looks up information about a stored file.
type GetRequest struct {
	Token string
	// Formatted asks for a human readable retention period.
	Formatted bool
}

// NewGetRequest returns a file info request for token.
func NewGetRequest(token string) GetRequest {
	return GetRequest{Token: token}
}

// WithFormatted sets the Formatted flag.
func (r GetRequest) WithFormatted(formatted bool) GetRequest {
	r.Formatted = formatted
	return r
}

// ModificationRequest updates options on a stored file. Only fields that
// were set are sent; the service leaves the rest unchanged.
type ModificationRequest struct {
	token            string
	password         *string
	previousPassword *string
	customExpiry     *string
	hideFilename     *bool
}

// NewModificationRequest returns an empty modification of token.
func NewModificationRequest(token string) ModificationRequest {
	return ModificationRequest{token: token}
}

// Token returns the token of the file being modified.
func (r ModificationRequest) Token() string {
	return r.token
}

// Password sets a new password on the file.
func (r ModificationRequest) Password(password string) ModificationRequest {
	r.password = &password
	return r
}

// PreviousPassword supplies the current password when replacing it.
func (r ModificationRequest) PreviousPassword(password string) ModificationRequest {
	r.previousPassword = &password
	return r
}

// CustomExpiry sets a new expiry on the file.
func (r ModificationRequest) CustomExpiry(expiry string) ModificationRequest {
	r.customExpiry = &expiry
	return r
}

// HideFilename sets the hide-filename flag.
func (r ModificationRequest) HideFilename(hide bool) ModificationRequest {
	r.hideFilename = &hide
	return r
}

func (r ModificationRequest) body() modificationBody {
	return modificationBody{
		Password:         r.password,
		PreviousPassword: r.previousPassword,
		CustomExpiry:     r.customExpiry,
		HideFilename:     r.hideFilename,
	}
}

type modificationBody struct {
	Password         *string `json:"password,omitempty"`
	PreviousPassword *string `json:"previousPassword,omitempty"`
	CustomExpiry     *string `json:"customExpiry,omitempty"`
	HideFilename     *bool   `json:"hideFilename,omitempty"`
}

type bucketGetBody struct {
	BucketToken string `json:"bucket_token"`
}

type albumCreateBody struct {
	Name string `json:"name"`
}

type albumFilesBody struct {
	FileTokens []string `json:"fileTokens"`
}
