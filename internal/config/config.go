package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	MinTimeout         = 1
	MaxTimeout         = 600
	MinRetries         = 1
	MaxRetries         = 10
	MinDownloadWorkers = 1
	MaxDownloadWorkers = 32

	// EnvPrefix prefixes every environment override, e.g. WAIFUVAULT_BASE_URL.
	EnvPrefix = "WAIFUVAULT"
)

var expiryPattern = regexp.MustCompile(`^[0-9]+[mhd]$`)

// Config represents the main application configuration
type Config struct {
	BaseURL           string       `toml:"base_url"`
	Loglevel          string       `toml:"loglevel"`
	Timeout           int          `toml:"timeout"`
	Retries           int          `toml:"retries"`
	RetryDelayMS      int          `toml:"retry_delay_ms"`
	DownloadWorkers   int          `toml:"download_workers"`
	DownloadDirectory string       `toml:"download_directory"`
	Upload            UploadConfig `toml:"upload"`
	Server            ServerConfig `toml:"server"`
}

// UploadConfig holds the defaults applied to every upload
type UploadConfig struct {
	Bucket          string `toml:"bucket"`
	Expires         string `toml:"expires"`
	HideFilename    bool   `toml:"hide_filename"`
	OneTimeDownload bool   `toml:"one_time_download"`
}

// ServerConfig holds the settings of the local mock server
type ServerConfig struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	// PublicURL is used to build file URLs; empty means http://bind_address:port.
	PublicURL string `toml:"public_url"`
	// DefaultRetention applies to uploads without an expiry.
	DefaultRetention string `toml:"default_retention"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://waifuvault.moe/rest",
		Loglevel:          "info",
		Timeout:           30,
		Retries:           3,
		RetryDelayMS:      500,
		DownloadWorkers:   4,
		DownloadDirectory: ".",
		Server: ServerConfig{
			BindAddress:      "127.0.0.1",
			Port:             8281,
			DefaultRetention: "30d",
		},
	}
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() (string, error) {
	homeDir, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "waifuvault", "config.toml"), nil
}

// Load loads configuration from a TOML file and applies environment overrides
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to the defaults when the
// file does not exist.
func LoadOrDefault(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(configPath); !os.IsNotExist(statErr) {
		return nil, err
	}

	cfg = DefaultConfig()
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides settings from WAIFUVAULT_* environment variables
func (c *Config) applyEnv() {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range []string{"base_url", "loglevel", "bucket", "timeout", "download_directory"} {
		_ = v.BindEnv(key)
	}

	if s := v.GetString("base_url"); s != "" {
		c.BaseURL = s
	}
	if s := v.GetString("loglevel"); s != "" {
		c.Loglevel = s
	}
	if s := v.GetString("bucket"); s != "" {
		c.Upload.Bucket = s
	}
	if s := v.GetString("download_directory"); s != "" {
		c.DownloadDirectory = s
	}
	if v.GetString("timeout") != "" {
		c.Timeout = v.GetInt("timeout")
	}
}

// ValidExpiry reports whether s is an expiry the service accepts:
// a number followed by m, h or d.
func ValidExpiry(s string) bool {
	return expiryPattern.MatchString(s)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.ParseRequestURI(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url is invalid: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https")
	}

	if _, err := logrus.ParseLevel(c.Loglevel); err != nil {
		return fmt.Errorf("loglevel must be one of: panic, fatal, error, warn, info, debug, trace")
	}

	if c.Timeout < MinTimeout || c.Timeout > MaxTimeout {
		return fmt.Errorf("timeout must be between %d and %d seconds", MinTimeout, MaxTimeout)
	}
	if c.Retries < MinRetries || c.Retries > MaxRetries {
		return fmt.Errorf("retries must be between %d and %d", MinRetries, MaxRetries)
	}
	if c.RetryDelayMS < 0 {
		return fmt.Errorf("retry_delay_ms must not be negative")
	}
	if c.DownloadWorkers < MinDownloadWorkers || c.DownloadWorkers > MaxDownloadWorkers {
		return fmt.Errorf("download_workers must be between %d and %d", MinDownloadWorkers, MaxDownloadWorkers)
	}
	if c.DownloadDirectory == "" {
		return fmt.Errorf("download_directory is required")
	}

	if c.Upload.Expires != "" && !ValidExpiry(c.Upload.Expires) {
		return fmt.Errorf("upload.expires must be a number followed by m, h or d")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if !ValidExpiry(c.Server.DefaultRetention) {
		return fmt.Errorf("server.default_retention must be a number followed by m, h or d")
	}
	if c.Server.PublicURL != "" {
		if _, err := url.ParseRequestURI(c.Server.PublicURL); err != nil {
			return fmt.Errorf("server.public_url is invalid: %v", err)
		}
	}

	return nil
}

// ServerURL returns the public base URL of the mock server
func (c *Config) ServerURL() string {
	if c.Server.PublicURL != "" {
		return c.Server.PublicURL
	}
	return fmt.Sprintf("http://%s:%d", c.Server.BindAddress, c.Server.Port)
}
