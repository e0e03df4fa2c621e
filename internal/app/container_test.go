package app

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/waifuvault/waifuvault-go/internal/config"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

// stubClient satisfies the interface; none of its methods are called here.
type stubClient struct {
	waifuvault.ClientAPI
}

func baseConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://localhost:8281/rest"
	cfg.Timeout = 5
	cfg.Retries = 4
	cfg.RetryDelayMS = 50
	return cfg
}

func TestNewContainerDefaults(t *testing.T) {
	container, err := NewContainer(baseConfig(), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if container.Logger == nil {
		t.Fatal("expected logger to be initialized")
	}
	if container.Logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info level, got %v", container.Logger.GetLevel())
	}

	client, ok := container.Client.(*waifuvault.Client)
	if !ok {
		t.Fatalf("expected default *waifuvault.Client, got %T", container.Client)
	}
	if client.BaseURL() != "http://localhost:8281/rest" {
		t.Errorf("expected base URL from config, got %q", client.BaseURL())
	}

	if container.Retry.Attempts != 4 {
		t.Errorf("expected 4 attempts, got %d", container.Retry.Attempts)
	}
	if container.Retry.BaseDelay != 50*time.Millisecond {
		t.Errorf("expected 50ms base delay, got %v", container.Retry.BaseDelay)
	}
	if container.Retry.OnRetry == nil {
		t.Error("expected retry hook to be set")
	}
}

func TestContainerOverrides(t *testing.T) {
	customLogger := buildDefaultLogger("debug")
	stub := &stubClient{}

	container, err := NewContainer(baseConfig(), WithLogger(customLogger), WithClient(stub))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if container.Logger != customLogger {
		t.Error("expected custom logger to be used")
	}
	if container.Client != stub {
		t.Error("expected custom client to be used")
	}
}

func TestRetryHookLogs(t *testing.T) {
	var buf bytes.Buffer
	container, err := NewContainer(baseConfig(), WithLogOutput(&buf), WithClient(&stubClient{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	container.Retry.OnRetry(1, errors.New("connection reset"), time.Second)
	if !bytes.Contains(buf.Bytes(), []byte("connection reset")) {
		t.Errorf("expected retry to be logged, got %q", buf.String())
	}
}

func TestNewContainerNilConfigError(t *testing.T) {
	if _, err := NewContainer(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestWithLoggerNilError(t *testing.T) {
	_, err := NewContainer(baseConfig(), WithLogger(nil))
	if err == nil {
		t.Fatal("expected error when logger is nil")
	}
}

func TestWithClientNilError(t *testing.T) {
	_, err := NewContainer(baseConfig(), WithClient(nil))
	if err == nil {
		t.Fatal("expected error when client is nil")
	}
}

func TestBuildDefaultLoggerFallsBackToInfo(t *testing.T) {
	logger := buildDefaultLogger("shouting")
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info level fallback, got %v", logger.GetLevel())
	}
}
