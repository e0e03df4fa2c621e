package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

const configTemplate = `# Optional WaifuVault REST endpoint, default "https://waifuvault.moe/rest".
# Point it at 'waifuvault mock-server' for local testing.
base_url = "https://waifuvault.moe/rest"

# Optional log level, default "info"
loglevel = "info"

# Optional request timeout in secs, default 30.
timeout = 30

# Optional number of attempts for calls that fail in transport (network errors, 429, 5xx), default 3.
retries = 3

# Optional delay before the first retry in milliseconds, doubled for every further retry, default 500.
retry_delay_ms = 500

# Optional number of download workers used by 'bucket pull' and 'album pull', default 4.
download_workers = 4

# Optional directory downloads are written to, default ".".
download_directory = "."

[upload]
# Optional bucket every upload goes to. Create one with 'waifuvault bucket create'.
bucket = "{{BUCKET_TOKEN}}"

# Optional expiry applied to uploads: a number followed by m, h or d. Empty keeps the service default.
expires = ""

# Optional, hide the original file name in the file URL, default false.
hide_filename = false

# Optional, delete files after their first download, default false.
one_time_download = false

[server]
# Settings of 'waifuvault mock-server', an in-memory WaifuVault for local testing.
bind_address = "127.0.0.1"
port = 8281

# Optional URL file links are built on, default "http://<bind_address>:<port>".
public_url = ""

# Retention of uploads without an expiry, default "30d".
default_retention = "30d"
`

// ConfigTemplate returns the generated configuration with bucket filled in.
func ConfigTemplate(bucket string) string {
	return strings.Replace(configTemplate, "{{BUCKET_TOKEN}}", bucket, 1)
}

// GenerateConfig writes a configuration file, backing up any existing one.
func GenerateConfig(out io.Writer, configPath, bucket string) error {
	fmt.Fprintf(out, "Generating config %s\n", configPath)

	// Check if config file already exists and back it up
	if _, err := os.Stat(configPath); err == nil {
		backupPath := configPath + ".bak"
		fmt.Fprintf(out, "Backing up config %s\n", configPath)
		if err := os.Rename(configPath, backupPath); err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	// Create parent directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	fmt.Fprintf(out, "Writing %s\n", configPath)
	if err := os.WriteFile(configPath, []byte(ConfigTemplate(bucket)), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ReadPassword prompts on out and reads a password from in. Input is not
// echoed when in is a terminal; otherwise a single line is read.
func ReadPassword(in *os.File, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)

	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(data), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
