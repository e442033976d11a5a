package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tguard/internal/flagx"
	"github.com/dmitrijs2005/tguard/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	KeyServiceURL  string         `json:"keyservice_url"`
	InboxPath      string         `json:"inbox_path"`
	AttachmentDir  string         `json:"attachment_dir"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	LogLevel       string         `json:"log_level"`
}

// parseJson overlays cfg with the JSON file named by -c/-config or
// $TGUARD_CONFIG. Keys missing from the file keep their current values.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	jc := JsonConfig{
		ServerURL:      cfg.ServerURL,
		KeyServiceURL:  cfg.KeyServiceURL,
		InboxPath:      cfg.InboxPath,
		AttachmentDir:  cfg.AttachmentDir,
		RequestTimeout: timex.Duration{Duration: cfg.RequestTimeout},
		LogLevel:       cfg.LogLevel,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.ServerURL = jc.ServerURL
	cfg.KeyServiceURL = jc.KeyServiceURL
	cfg.InboxPath = jc.InboxPath
	cfg.AttachmentDir = jc.AttachmentDir
	cfg.RequestTimeout = jc.RequestTimeout.Duration
	cfg.LogLevel = jc.LogLevel
	return nil
}
