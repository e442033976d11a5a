package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds runtime settings for the tguard CLI.
//
// Fields:
//   - ServerURL: base URL of the tguard backend.
//   - KeyServiceURL: base URL of the key service.
//   - InboxPath: SQLite file opened messages are kept in.
//   - AttachmentDir: subdirectory of the working directory attachments are saved to.
//   - RequestTimeout: per-request HTTP timeout.
type Config struct {
	ServerURL      string
	KeyServiceURL  string
	InboxPath      string
	AttachmentDir  string
	RequestTimeout time.Duration
	LogLevel       string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://localhost:8000"
	c.KeyServiceURL = "http://localhost:8087"
	c.InboxPath = "inbox.db"
	c.AttachmentDir = "attachments"
	c.RequestTimeout = 10 * time.Second
	c.LogLevel = "warn"
}

// Validate rejects settings the CLI cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerURL == "" {
		errs = append(errs, errors.New("server_url is empty"))
	}
	if c.KeyServiceURL == "" {
		errs = append(errs, errors.New("keyservice_url is empty"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
