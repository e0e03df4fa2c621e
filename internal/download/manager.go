package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/waifuvault/waifuvault-go/internal/retry"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

const partSuffix = ".part"

// Manager mirrors buckets and albums to a local directory
type Manager struct {
	client    waifuvault.ClientAPI
	policy    retry.Policy
	logger    *logrus.Logger
	workers   int
	directory string
	password  string
	overwrite bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkers sets the number of parallel downloads.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithDirectory sets the directory files are written to.
func WithDirectory(dir string) Option {
	return func(m *Manager) {
		m.directory = dir
	}
}

// WithPassword sets the password sent for protected files.
func WithPassword(password string) Option {
	return func(m *Manager) {
		m.password = password
	}
}

// WithOverwrite replaces files that already exist instead of skipping them.
func WithOverwrite(overwrite bool) Option {
	return func(m *Manager) {
		m.overwrite = overwrite
	}
}

// NewManager creates a new download manager
func NewManager(client waifuvault.ClientAPI, policy retry.Policy, logger *logrus.Logger, opts ...Option) *Manager {
	m := &Manager{
		client:    client,
		policy:    policy,
		logger:    logger,
		workers:   1,
		directory: ".",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PullBucket downloads every file of a bucket.
func (m *Manager) PullBucket(ctx context.Context, token string) (*Summary, error) {
	bucket, err := retry.Value(ctx, m.policy, func(ctx context.Context) (*waifuvault.BucketEntry, error) {
		return m.client.GetBucket(ctx, token)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	m.logger.Infof("bucket %s: %d files", token, len(bucket.Files))
	return m.Download(ctx, Targets(m.directory, bucket.Files))
}

// PullAlbum downloads every file of an album.
func (m *Manager) PullAlbum(ctx context.Context, token string) (*Summary, error) {
	album, err := retry.Value(ctx, m.policy, func(ctx context.Context) (*waifuvault.AlbumEntry, error) {
		return m.client.GetAlbum(ctx, token)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get album: %w", err)
	}

	m.logger.Infof("album %s (%s): %d files", album.Name, token, len(album.Files))
	return m.Download(ctx, Targets(m.directory, album.Files))
}

// Download fetches targets with the configured number of workers. Failures
// are reported per target in the summary; the returned error is only set
// when ctx is canceled.
func (m *Manager) Download(ctx context.Context, targets []Target) (*Summary, error) {
	if err := os.MkdirAll(m.directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	jobs := make(chan targetMessage)
	results := make(chan targetResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go m.downloadWorker(ctx, &wg, jobs, results)
	}

	go func() {
		defer close(jobs)
		for i, target := range targets {
			select {
			case <-ctx.Done():
				return
			case jobs <- targetMessage{index: i, target: target}:
			}
		}
	}()

	wg.Wait()
	close(results)

	ordered := make([]*targetResult, len(targets))
	for res := range results {
		ordered[res.index] = &res
	}

	summary := &Summary{}
	for _, res := range ordered {
		if res == nil {
			continue
		}
		summary.add(res.status, res.err)
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// downloadWorker handles file downloads
func (m *Manager) downloadWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan targetMessage, results chan<- targetResult) {
	defer wg.Done()

	for msg := range jobs {
		status, err := m.downloadTarget(ctx, &msg.target)
		var terr error
		if err != nil {
			terr = &TargetError{Target: msg.target, Err: err}
		}
		results <- targetResult{index: msg.index, status: status, err: terr}
	}
}

// downloadTarget downloads a single target
func (m *Manager) downloadTarget(ctx context.Context, target *Target) (Status, error) {
	if !m.overwrite {
		if _, err := os.Stat(target.To); err == nil {
			m.logger.Infof("%s: already exists", target)
			return StatusSkipped, nil
		}
	}

	m.logger.Infof("%s: download started", target)
	policy := m.policy
	if target.OneTime {
		policy.Attempts = 1
	}
	data, err := retry.Value(ctx, policy, func(ctx context.Context) ([]byte, error) {
		return m.client.DownloadFile(ctx, target.From, m.password)
	})
	if err != nil {
		m.logger.Errorf("%s: download failed: %v", target, err)
		return StatusFailed, err
	}

	if err := writeFile(target.To, data); err != nil {
		m.logger.Errorf("%s: write failed: %v", target, err)
		return StatusFailed, err
	}

	m.logger.Infof("%s: download succeeded", target)
	return StatusDownloaded, nil
}

// writeFile writes data next to path and renames it into place.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + partSuffix
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
