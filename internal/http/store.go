package http

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/waifuvault/waifuvault-go/internal/config"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

// StoreError is a failure the server reports as an error envelope.
type StoreError struct {
	Status  int
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}

// Name is the envelope name for the status, e.g. NOT_FOUND.
func (e *StoreError) Name() string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(e.Status), " ", "_"))
}

func notFound(format string, args ...any) error {
	return &StoreError{Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

func badRequest(format string, args ...any) error {
	return &StoreError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Password failures on download. The handler answers them with a bare 403.
var (
	errPasswordRequired  = &StoreError{Status: http.StatusForbidden, Message: "this file requires a password to download"}
	errPasswordIncorrect = &StoreError{Status: http.StatusForbidden, Message: "supplied password is incorrect"}
)

type storedFile struct {
	token        string
	id           string
	name         string
	mime         string
	data         []byte
	bucket       string
	album        string
	views        int64
	password     string
	hideFilename bool
	oneTime      bool
	expires      time.Time
}

type storedBucket struct {
	token  string
	files  []string
	albums []string
}

type storedAlbum struct {
	token   string
	bucket  string
	name    string
	public  string
	files   []string
	created time.Time
}

// UploadParams describes a file being stored.
type UploadParams struct {
	Name            string
	Data            []byte
	Bucket          string
	Expires         string
	Password        string
	HideFilename    bool
	OneTimeDownload bool
}

// FileUpdate is the PATCH body. Nil fields are left unchanged.
type FileUpdate struct {
	Password         *string `json:"password"`
	PreviousPassword *string `json:"previousPassword"`
	CustomExpiry     *string `json:"customExpiry"`
	HideFilename     *bool   `json:"hideFilename"`
}

// Download is a file served from /f/.
type Download struct {
	Name string
	MIME string
	Data []byte
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// Store keeps files, buckets and albums in memory. It is safe for
// concurrent use.
type Store struct {
	mu        sync.Mutex
	publicURL string
	retention time.Duration
	now       func() time.Time

	files   map[string]*storedFile
	ids     map[string]string
	buckets map[string]*storedBucket
	albums  map[string]*storedAlbum
	shared  map[string]string
}

// NewStore creates an empty store. File URLs are built on publicURL and
// uploads without an expiry are kept for retention.
func NewStore(publicURL string, retention time.Duration, opts ...StoreOption) *Store {
	s := &Store{
		publicURL: strings.TrimRight(publicURL, "/"),
		retention: retention,
		now:       time.Now,
		files:     make(map[string]*storedFile),
		ids:       make(map[string]string),
		buckets:   make(map[string]*storedBucket),
		albums:    make(map[string]*storedAlbum),
		shared:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxRetention bounds expiries so that they cannot overflow a time.Duration.
const MaxRetention = 100 * 365 * 24 * time.Hour

// ParseExpiry converts "<n>m", "<n>h" or "<n>d" to a duration.
func ParseExpiry(s string) (time.Duration, error) {
	if !config.ValidExpiry(s) {
		return 0, fmt.Errorf("invalid expiry %q: must be a number followed by m, h or d", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q: %w", s, err)
	}

	unit := time.Minute
	switch s[len(s)-1] {
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	}
	if n > int(MaxRetention/unit) {
		return 0, fmt.Errorf("invalid expiry %q: must not exceed %d days", s, int(MaxRetention/(24*time.Hour)))
	}
	return time.Duration(n) * unit, nil
}

// formatRetention renders d the way the service does with ?formatted=true.
func formatRetention(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	units := []struct {
		label string
		size  time.Duration
	}{
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
		{"second", time.Second},
	}

	var parts []string
	for _, u := range units {
		n := d / u.size
		if n == 0 {
			continue
		}
		d -= n * u.size
		label := u.label
		if n != 1 {
			label += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
	}
	return strings.Join(parts, " ")
}

// Put stores an uploaded file.
func (s *Store) Put(p UploadParams) (*waifuvault.FileEntry, error) {
	if len(p.Data) == 0 {
		return nil, badRequest("file is empty")
	}
	if p.Name == "" {
		return nil, badRequest("file name is required")
	}

	retention := s.retention
	if p.Expires != "" {
		d, err := ParseExpiry(p.Expires)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		retention = d
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var bucket *storedBucket
	if p.Bucket != "" {
		var ok bool
		if bucket, ok = s.buckets[p.Bucket]; !ok {
			return nil, notFound("bucket %s does not exist", p.Bucket)
		}
	}

	f := &storedFile{
		token:        uuid.NewString(),
		id:           strings.ReplaceAll(uuid.NewString(), "-", ""),
		name:         filepath.Base(p.Name),
		mime:         mimetype.Detect(p.Data).String(),
		data:         p.Data,
		password:     p.Password,
		hideFilename: p.HideFilename,
		oneTime:      p.OneTimeDownload,
		expires:      s.now().Add(retention),
	}
	if bucket != nil {
		f.bucket = bucket.token
		bucket.files = append(bucket.files, f.token)
	}

	s.files[f.token] = f
	s.ids[f.id] = f.token

	return s.entryLocked(f, false), nil
}

// Info describes a stored file.
func (s *Store) Info(token string, formatted bool) (*waifuvault.FileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileLocked(token)
	if err != nil {
		return nil, err
	}
	return s.entryLocked(f, formatted), nil
}

// Update applies a modification. Changing the password of a protected file
// requires the current one as PreviousPassword.
func (s *Store) Update(token string, u FileUpdate) (*waifuvault.FileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileLocked(token)
	if err != nil {
		return nil, err
	}

	var expires time.Time
	if u.CustomExpiry != nil {
		retention := s.retention
		if *u.CustomExpiry != "" {
			if retention, err = ParseExpiry(*u.CustomExpiry); err != nil {
				return nil, badRequest("%v", err)
			}
		}
		expires = s.now().Add(retention)
	}

	if u.Password != nil && f.password != "" {
		if u.PreviousPassword == nil || *u.PreviousPassword != f.password {
			return nil, badRequest("previous password is incorrect")
		}
	}

	if u.Password != nil {
		f.password = *u.Password
	}
	if !expires.IsZero() {
		f.expires = expires
	}
	if u.HideFilename != nil {
		f.hideFilename = *u.HideFilename
	}

	return s.entryLocked(f, false), nil
}

// Delete removes a file.
func (s *Store) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileLocked(token)
	if err != nil {
		return err
	}
	s.removeLocked(f)
	return nil
}

// Fetch serves a file by its URL id, counting the view. One-time files are
// removed once served.
func (s *Store) Fetch(id, password string) (*Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.ids[id]
	if !ok {
		return nil, notFound("file not found")
	}
	f, err := s.fileLocked(token)
	if err != nil {
		return nil, err
	}

	if f.password != "" {
		if password == "" {
			return nil, errPasswordRequired
		}
		if password != f.password {
			return nil, errPasswordIncorrect
		}
	}

	f.views++
	if f.oneTime {
		s.removeLocked(f)
	}
	return &Download{Name: f.name, MIME: f.mime, Data: f.data}, nil
}

// CreateBucket creates an empty bucket.
func (s *Store) CreateBucket() *waifuvault.BucketEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := &storedBucket{token: uuid.NewString()}
	s.buckets[b.token] = b
	return s.bucketEntryLocked(b)
}

// Bucket describes a bucket with its files and albums.
func (s *Store) Bucket(token string) (*waifuvault.BucketEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[token]
	if !ok {
		return nil, notFound("bucket %s does not exist", token)
	}
	return s.bucketEntryLocked(b), nil
}

// DeleteBucket removes a bucket together with its files and albums.
func (s *Store) DeleteBucket(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[token]
	if !ok {
		return notFound("bucket %s does not exist", token)
	}
	for _, a := range append([]string(nil), b.albums...) {
		if album, ok := s.albums[a]; ok {
			s.removeAlbumLocked(album)
		}
	}
	for _, t := range append([]string(nil), b.files...) {
		if f, ok := s.files[t]; ok {
			s.removeLocked(f)
		}
	}
	delete(s.buckets, token)
	return nil
}

// CreateAlbum creates an empty album in a bucket.
func (s *Store) CreateAlbum(bucketToken, name string) (*waifuvault.AlbumEntry, error) {
	if strings.TrimSpace(name) == "" {
		return nil, badRequest("album name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucketToken]
	if !ok {
		return nil, notFound("bucket %s does not exist", bucketToken)
	}

	a := &storedAlbum{
		token:   uuid.NewString(),
		bucket:  b.token,
		name:    name,
		created: s.now(),
	}
	s.albums[a.token] = a
	b.albums = append(b.albums, a.token)
	return s.albumEntryLocked(a), nil
}

// Associate adds files of the album's bucket to the album. A file belongs to
// at most one album.
func (s *Store) Associate(albumToken string, fileTokens []string) (*waifuvault.AlbumEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.albums[albumToken]
	if !ok {
		return nil, notFound("album %s does not exist", albumToken)
	}

	files := make([]*storedFile, 0, len(fileTokens))
	for _, t := range fileTokens {
		f, err := s.fileLocked(t)
		if err != nil {
			return nil, err
		}
		if f.bucket != a.bucket {
			return nil, badRequest("file %s is not in the album's bucket", t)
		}
		if f.album != "" && f.album != a.token {
			return nil, badRequest("file %s already belongs to another album", t)
		}
		files = append(files, f)
	}

	for _, f := range files {
		if f.album == a.token {
			continue
		}
		f.album = a.token
		a.files = append(a.files, f.token)
	}
	return s.albumEntryLocked(a), nil
}

// Disassociate removes files from an album. The files themselves are kept.
func (s *Store) Disassociate(albumToken string, fileTokens []string) (*waifuvault.AlbumEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.albums[albumToken]
	if !ok {
		return nil, notFound("album %s does not exist", albumToken)
	}

	for _, t := range fileTokens {
		f, err := s.fileLocked(t)
		if err != nil {
			return nil, err
		}
		if f.album != a.token {
			return nil, badRequest("file %s is not in album %s", t, a.token)
		}
	}
	for _, t := range fileTokens {
		s.files[t].album = ""
		a.files = without(a.files, t)
	}
	return s.albumEntryLocked(a), nil
}

// DeleteAlbum removes an album, and its files when deleteFiles is set.
func (s *Store) DeleteAlbum(albumToken string, deleteFiles bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.albums[albumToken]
	if !ok {
		return notFound("album %s does not exist", albumToken)
	}
	if deleteFiles {
		for _, t := range append([]string(nil), a.files...) {
			if f, ok := s.files[t]; ok {
				s.removeLocked(f)
			}
		}
	}
	s.removeAlbumLocked(a)
	return nil
}

// Album describes an album with its files.
func (s *Store) Album(albumToken string) (*waifuvault.AlbumEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.albums[albumToken]
	if !ok {
		return nil, notFound("album %s does not exist", albumToken)
	}
	return s.albumEntryLocked(a), nil
}

// Share makes an album public and returns its public URL. Sharing a shared
// album returns the existing URL.
func (s *Store) Share(albumToken string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.albums[albumToken]
	if !ok {
		return "", notFound("album %s does not exist", albumToken)
	}
	if a.public == "" {
		a.public = uuid.NewString()
		s.shared[a.public] = a.token
	}
	return s.publicURL + "/album/" + a.public, nil
}

// Revoke withdraws the public token of an album.
func (s *Store) Revoke(albumToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.albums[albumToken]
	if !ok {
		return notFound("album %s does not exist", albumToken)
	}
	if a.public == "" {
		return badRequest("album %s is not shared", albumToken)
	}
	delete(s.shared, a.public)
	a.public = ""
	return nil
}

// AlbumArchive zips the album's files. ids index the album's file list; an
// empty list selects every file. Protected files are never included.
func (s *Store) AlbumArchive(albumToken string, ids []int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.albums[albumToken]
	if !ok {
		return nil, notFound("album %s does not exist", albumToken)
	}

	// ids index the live files, the same list Album returns.
	var live []string
	for _, t := range a.files {
		if f, ok := s.files[t]; ok && s.now().Before(f.expires) {
			live = append(live, t)
		}
	}

	selected := live
	if len(ids) > 0 {
		selected = make([]string, 0, len(ids))
		for _, id := range ids {
			if id < 0 || id >= len(live) {
				return nil, badRequest("file id %d is not in album %s", id, albumToken)
			}
			selected = append(selected, live[id])
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]bool)
	for _, t := range selected {
		f := s.files[t]
		if f.password != "" {
			continue
		}
		name := archiveName(f.name, used)
		used[name] = true

		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("adding %s to archive: %w", name, err)
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, fmt.Errorf("adding %s to archive: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

// archiveName returns name, or "name (n).ext" with the lowest n not yet used.
func archiveName(name string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !used[candidate] {
			return candidate
		}
	}
}

// fileLocked looks a file up, dropping it if it has expired.
func (s *Store) fileLocked(token string) (*storedFile, error) {
	f, ok := s.files[token]
	if !ok {
		return nil, notFound("file %s not found", token)
	}
	if !s.now().Before(f.expires) {
		s.removeLocked(f)
		return nil, notFound("file %s not found", token)
	}
	return f, nil
}

func (s *Store) removeLocked(f *storedFile) {
	delete(s.files, f.token)
	delete(s.ids, f.id)
	if b, ok := s.buckets[f.bucket]; ok {
		b.files = without(b.files, f.token)
	}
	if a, ok := s.albums[f.album]; ok {
		a.files = without(a.files, f.token)
	}
}

func (s *Store) removeAlbumLocked(a *storedAlbum) {
	for _, t := range a.files {
		if f, ok := s.files[t]; ok {
			f.album = ""
		}
	}
	if a.public != "" {
		delete(s.shared, a.public)
	}
	if b, ok := s.buckets[a.bucket]; ok {
		b.albums = without(b.albums, a.token)
	}
	delete(s.albums, a.token)
}

func (s *Store) fileURL(f *storedFile) string {
	name := f.name
	if f.hideFilename {
		name = f.id + filepath.Ext(f.name)
	}
	return s.publicURL + "/f/" + f.id + "/" + url.PathEscape(name)
}

func (s *Store) entryLocked(f *storedFile, formatted bool) *waifuvault.FileEntry {
	remaining := f.expires.Sub(s.now())
	retention := waifuvault.RetentionMillis(remaining.Milliseconds())
	if formatted {
		retention = waifuvault.RetentionFormatted(formatRetention(remaining))
	}

	entry := &waifuvault.FileEntry{
		Token:           f.token,
		URL:             s.fileURL(f),
		Views:           f.views,
		RetentionPeriod: retention,
		Options: &waifuvault.FileOptions{
			HideFilename:    f.hideFilename,
			OneTimeDownload: f.oneTime,
			Protected:       f.password != "",
		},
	}
	if f.bucket != "" {
		bucket := f.bucket
		entry.Bucket = &bucket
	}
	if a, ok := s.albums[f.album]; ok {
		meta := s.albumMetadataLocked(a)
		entry.Album = &meta
	}
	return entry
}

func (s *Store) entriesLocked(tokens []string) []waifuvault.FileEntry {
	entries := make([]waifuvault.FileEntry, 0, len(tokens))
	for _, t := range tokens {
		if f, ok := s.files[t]; ok && s.now().Before(f.expires) {
			entries = append(entries, *s.entryLocked(f, false))
		}
	}
	return entries
}

func (s *Store) bucketEntryLocked(b *storedBucket) *waifuvault.BucketEntry {
	albums := make([]waifuvault.AlbumMetadata, 0, len(b.albums))
	for _, t := range b.albums {
		if a, ok := s.albums[t]; ok {
			albums = append(albums, s.albumMetadataLocked(a))
		}
	}
	return &waifuvault.BucketEntry{
		Token:  b.token,
		Files:  s.entriesLocked(b.files),
		Albums: albums,
	}
}

func (s *Store) albumEntryLocked(a *storedAlbum) *waifuvault.AlbumEntry {
	entry := &waifuvault.AlbumEntry{
		Token:       a.token,
		BucketToken: a.bucket,
		Name:        a.name,
		Files:       s.entriesLocked(a.files),
	}
	if a.public != "" {
		public := a.public
		entry.PublicToken = &public
	}
	return entry
}

func (s *Store) albumMetadataLocked(a *storedAlbum) waifuvault.AlbumMetadata {
	meta := waifuvault.AlbumMetadata{
		Token:       a.token,
		Name:        a.name,
		Bucket:      a.bucket,
		DateCreated: a.created.UnixMilli(),
	}
	if a.public != "" {
		public := a.public
		meta.PublicToken = &public
	}
	return meta
}

func without(tokens []string, token string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if t != token {
			out = append(out, t)
		}
	}
	return out
}
