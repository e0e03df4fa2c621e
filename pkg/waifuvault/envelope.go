package waifuvault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies which of the service's response shapes an envelope holds.
type Kind int

const (
	KindUnknown Kind = iota
	KindFile
	KindAlbum
	KindBucket
	KindGeneric
	KindError
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file entry"
	case KindAlbum:
		return "album entry"
	case KindBucket:
		return "bucket entry"
	case KindGeneric:
		return "generic message"
	case KindError:
		return "error"
	case KindDelete:
		return "delete confirmation"
	default:
		return "unknown"
	}
}

// Envelope is a classified service response. Exactly one payload field is
// set, selected by Kind.
type Envelope struct {
	Kind    Kind
	File    *FileEntry
	Album   *AlbumEntry
	Bucket  *BucketEntry
	Generic *GenericMessage
	Err     *APIError
	Deleted bool

	Raw []byte
}

type fieldSet map[string]json.RawMessage

// has reports whether every key is present with a non-null value.
func (f fieldSet) has(keys ...string) bool {
	for _, k := range keys {
		v, ok := f[k]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return false
		}
	}
	return true
}

// Classify determines the shape of a raw response body. Shapes are tried in
// a fixed order; album must come before bucket because both carry token and
// files, and only bucketToken tells them apart.
//
//  1. bare boolean                     -> KindDelete
//  2. token + url + views              -> KindFile
//  3. token + bucketToken              -> KindAlbum
//  4. token + files, no bucketToken    -> KindBucket
//  5. success + description, no token  -> KindGeneric
//  6. name + message + status          -> KindError
func Classify(raw []byte) Kind {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("true")) || bytes.Equal(trimmed, []byte("false")) {
		return KindDelete
	}

	var fields fieldSet
	if err := json.Unmarshal(trimmed, &fields); err != nil || fields == nil {
		return KindUnknown
	}

	switch {
	case fields.has("token", "url", "views"):
		return KindFile
	case fields.has("token", "bucketToken"):
		return KindAlbum
	case fields.has("token", "files"):
		return KindBucket
	case fields.has("success", "description") && !fields.has("token"):
		return KindGeneric
	case fields.has("name", "message", "status"):
		return KindError
	default:
		return KindUnknown
	}
}

// Decode classifies raw and decodes it into the matching record. A body that
// matches no shape, or matches one but cannot be decoded into it, yields a
// *ProtocolError carrying the body.
func Decode(raw []byte) (*Envelope, error) {
	env := &Envelope{Kind: Classify(raw), Raw: raw}

	var target any
	switch env.Kind {
	case KindDelete:
		target = &env.Deleted
	case KindFile:
		env.File = &FileEntry{}
		target = env.File
	case KindAlbum:
		env.Album = &AlbumEntry{}
		target = env.Album
	case KindBucket:
		env.Bucket = &BucketEntry{}
		target = env.Bucket
	case KindGeneric:
		env.Generic = &GenericMessage{}
		target = env.Generic
	case KindError:
		env.Err = &APIError{}
		target = env.Err
	default:
		return nil, &ProtocolError{Reason: describeBody(raw), Body: raw}
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, &ProtocolError{
			Kind:   env.Kind,
			Reason: fmt.Sprintf("decoding %s: %v", env.Kind, err),
			Body:   raw,
		}
	}

	return env, nil
}

// Expect narrows the envelope to the kinds legal for endpoint. A service
// error is returned as its *APIError; any other kind outside allowed is a
// *ProtocolError.
func (e *Envelope) Expect(endpoint string, allowed ...Kind) error {
	if e.Kind == KindError {
		return e.Err
	}
	for _, k := range allowed {
		if e.Kind == k {
			return nil
		}
	}

	names := make([]string, 0, len(allowed))
	for _, k := range allowed {
		names = append(names, k.String())
	}
	return &ProtocolError{
		Endpoint: endpoint,
		Kind:     e.Kind,
		Reason:   fmt.Sprintf("got %s, want %s", e.Kind, strings.Join(names, " or ")),
		Body:     e.Raw,
	}
}

func describeBody(raw []byte) string {
	const limit = 256
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return "empty body"
	}
	if len(body) > limit {
		body = body[:limit] + "..."
	}
	return fmt.Sprintf("unrecognised body %q", body)
}
