package download

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

// Target is a stored file and the local path it is written to
type Target struct {
	Token string
	From  string
	To    string
	// OneTime files are gone after the first fetch and are never re-requested.
	OneTime bool
}

// String returns a formatted string representation of the target
func (t *Target) String() string {
	token := t.Token
	if len(token) > 4 {
		token = token[:4]
	}
	return fmt.Sprintf("[%s: %s]", token, filepath.Base(t.To))
}

// Status is the outcome of a single target
type Status int

const (
	StatusDownloaded Status = iota
	StatusSkipped
	StatusFailed
)

// String returns a string representation of the status
func (s Status) String() string {
	switch s {
	case StatusDownloaded:
		return "Downloaded"
	case StatusSkipped:
		return "Skipped"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// TargetError reports a target that could not be written.
type TargetError struct {
	Target Target
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s: %v", &e.Target, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// Summary collects the outcome of a pull.
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
	// Errors holds one *TargetError per failed target, in target order.
	Errors []error
}

// Total is the number of targets processed.
func (s *Summary) Total() int {
	return s.Downloaded + s.Skipped + s.Failed
}

func (s *Summary) add(status Status, err error) {
	switch status {
	case StatusDownloaded:
		s.Downloaded++
	case StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
		s.Errors = append(s.Errors, err)
	}
}

type targetMessage struct {
	index  int
	target Target
}

type targetResult struct {
	index  int
	status Status
	err    error
}

// FileName derives the local name of a file from the last segment of its
// URL. It falls back to the token when the URL carries no usable name.
func FileName(entry waifuvault.FileEntry) string {
	name := ""
	if u, err := url.Parse(entry.URL); err == nil {
		name = path.Base(u.Path)
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}

	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return entry.Token
	}
	return name
}

// Targets maps file entries to paths under dir. Entries whose names collide
// get "-<token prefix>" before the extension.
func Targets(dir string, entries []waifuvault.FileEntry) []Target {
	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		counts[FileName(e)]++
	}

	targets := make([]Target, 0, len(entries))
	for _, e := range entries {
		name := FileName(e)
		if counts[name] > 1 {
			prefix := e.Token
			if len(prefix) > 8 {
				prefix = prefix[:8]
			}
			ext := filepath.Ext(name)
			name = strings.TrimSuffix(name, ext) + "-" + prefix + ext
		}
		targets = append(targets, Target{
			Token:   e.Token,
			From:    e.URL,
			To:      filepath.Join(dir, name),
			OneTime: e.Options != nil && e.Options.OneTimeDownload,
		})
	}
	return targets
}
