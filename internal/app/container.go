package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/waifuvault/waifuvault-go/internal/config"
	"github.com/waifuvault/waifuvault-go/internal/retry"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

// Container centralizes the core dependencies used across the application.
// The client is held as an interface so tests can substitute it.
type Container struct {
	Config *config.Config
	Logger *logrus.Logger
	Client waifuvault.ClientAPI
	Retry  retry.Policy
}

// Option allows customizing the container during construction.
type Option func(*Container) error

// WithLogger overrides the default logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Container) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.Logger = logger
		return nil
	}
}

// WithClient overrides the default WaifuVault client.
func WithClient(client waifuvault.ClientAPI) Option {
	return func(c *Container) error {
		if client == nil {
			return fmt.Errorf("waifuvault client cannot be nil")
		}
		c.Client = client
		return nil
	}
}

// WithLogOutput redirects the default logger, e.g. to io.Discard in tests.
func WithLogOutput(w io.Writer) Option {
	return func(c *Container) error {
		if w == nil {
			return fmt.Errorf("log output cannot be nil")
		}
		c.Logger.SetOutput(w)
		return nil
	}
}

// NewContainer builds a Container with defaults derived from cfg.
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	container := &Container{
		Config: cfg,
		Logger: buildDefaultLogger(cfg.Loglevel),
		Retry:  retry.NewPolicy(cfg.Retries, time.Duration(cfg.RetryDelayMS)*time.Millisecond),
	}

	// Apply options early so tests can inject mocks before defaults are created.
	for _, opt := range opts {
		if err := opt(container); err != nil {
			return nil, err
		}
	}

	if container.Client == nil {
		container.Client = waifuvault.NewClient(
			waifuvault.WithBaseURL(cfg.BaseURL),
			waifuvault.WithTimeout(time.Duration(cfg.Timeout)*time.Second),
			waifuvault.WithLogger(container.Logger),
		)
	}

	logger := container.Logger
	container.Retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warnf("retrying after transport error: %v", err)
	}

	return container, nil
}

func buildDefaultLogger(levelStr string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
