// Package config loads runtime configuration for the tguard CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config, or $TGUARD_CONFIG.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-s string   tguard backend base URL
//	-k string   key service base URL
//	-i string   path of the local inbox database
//	-o string   directory attachments are saved to
//	-t int      request timeout (seconds)
//	-L string   log level
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "10s"
// or integer nanoseconds:
//
//	{
//	  "server_url": "http://localhost:8000",
//	  "keyservice_url": "http://localhost:8087",
//	  "inbox_path": "inbox.db",
//	  "attachment_dir": "attachments",
//	  "request_timeout": "10s"
//	}
package config
