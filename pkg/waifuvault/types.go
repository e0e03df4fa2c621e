package waifuvault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FileEntry is the service's description of a stored file
type FileEntry struct {
	// Token identifies the file for info, modify and delete calls.
	Token string `json:"token"`
	// URL is the location the file can be downloaded from.
	URL string `json:"url"`
	// Bucket is the token of the owning bucket, if any.
	Bucket *string `json:"bucket,omitempty"`
	// Album is set when the file belongs to an album.
	Album *AlbumMetadata `json:"album,omitempty"`
	// Views is the number of times the file has been fetched.
	Views int64 `json:"views"`
	// RetentionPeriod is how long the file will be kept.
	RetentionPeriod RetentionPeriod `json:"retentionPeriod"`
	// Options are the flags applied to the file.
	Options *FileOptions `json:"options,omitempty"`
}

// FileOptions are the per-file flags reported by the service
type FileOptions struct {
	HideFilename    bool `json:"hideFilename"`
	OneTimeDownload bool `json:"oneTimeDownload"`
	Protected       bool `json:"protected"`
}

// BucketEntry is a bucket and its contents
type BucketEntry struct {
	Token  string          `json:"token"`
	Files  []FileEntry     `json:"files"`
	Albums []AlbumMetadata `json:"albums,omitempty"`
}

// AlbumEntry is an album and the files associated with it
type AlbumEntry struct {
	Token       string      `json:"token"`
	BucketToken string      `json:"bucketToken"`
	PublicToken *string     `json:"publicToken,omitempty"`
	Name        string      `json:"name"`
	Files       []FileEntry `json:"files"`
}

// AlbumMetadata is the lightweight album reference embedded in file and bucket entries
type AlbumMetadata struct {
	Token       string  `json:"token"`
	PublicToken *string `json:"publicToken,omitempty"`
	Name        string  `json:"name"`
	Bucket      string  `json:"bucket"`
	DateCreated int64   `json:"dateCreated"`
}

// Created returns the album creation time. The service reports it in milliseconds.
func (m AlbumMetadata) Created() time.Time {
	return time.UnixMilli(m.DateCreated)
}

// GenericMessage is returned by operations that only report pass/fail
type GenericMessage struct {
	Success     bool   `json:"success"`
	Description string `json:"description"`
}

// RetentionPeriod is either a number of milliseconds or a human readable
// string, depending on whether the formatted flag was sent with the request.
type RetentionPeriod struct {
	Millis    int64
	Formatted string
	// IsFormatted reports which of the two representations the service sent.
	IsFormatted bool
}

// RetentionMillis returns a millisecond retention period
func RetentionMillis(ms int64) RetentionPeriod {
	return RetentionPeriod{Millis: ms}
}

// RetentionFormatted returns a human readable retention period
func RetentionFormatted(s string) RetentionPeriod {
	return RetentionPeriod{Formatted: s, IsFormatted: true}
}

// Duration returns the retention period as a time.Duration. Formatted values
// have no numeric form and return 0.
func (r RetentionPeriod) Duration() time.Duration {
	if r.IsFormatted {
		return 0
	}
	return time.Duration(r.Millis) * time.Millisecond
}

func (r RetentionPeriod) String() string {
	if r.IsFormatted {
		return r.Formatted
	}
	return r.Duration().String()
}

// MarshalJSON encodes the period in the same form it was received in.
func (r RetentionPeriod) MarshalJSON() ([]byte, error) {
	if r.IsFormatted {
		return json.Marshal(r.Formatted)
	}
	return []byte(strconv.FormatInt(r.Millis, 10)), nil
}

// UnmarshalJSON accepts a JSON number or string.
func (r *RetentionPeriod) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RetentionFormatted(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("retentionPeriod must be a number or string: %w", err)
	}
	if ms, err := n.Int64(); err == nil {
		*r = RetentionMillis(ms)
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("retentionPeriod is not a valid number: %w", err)
	}
	*r = RetentionMillis(int64(f))
	return nil
}
