package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tguard/internal/flagx"
	"github.com/dmitrijs2005/tguard/internal/timex"
)

// JsonConfig is the on-disk shape of Config. Durations use timex.Duration
// so files may write "30m" as well as integer nanoseconds. Keys missing
// from the file keep their previous values.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	Host             string `json:"host"`
	DatabaseDSN      string `json:"database_dsn"`
	SecretKey        string `json:"secret_key"`

	StorageType                  string         `json:"storage_type"`
	StorageLocation              string         `json:"storage_location"`
	StorageTokenValidityDuration timex.Duration `json:"storage_token_validity_duration"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`

	Notifier string `json:"notifier"`
	MailFrom string `json:"mail_from"`
	MailUser string `json:"mail_user"`
	MailPass string `json:"mail_pass"`
	MailHost string `json:"mail_host"`
	MailPort int    `json:"mail_port"`

	AllowedAttributes []string `json:"allowed_attributes"`
	MaximumFileSize   int      `json:"maximum_file_size"`

	SubmissionsPerMinute float64 `json:"submissions_per_minute"`
	SubmissionBurst      int     `json:"submission_burst"`

	MailgunKey              string `json:"mailgun_key"`
	MailgunMessageURLPrefix string `json:"mailgun_message_url_prefix"`
	MailgunEventsURL        string `json:"mailgun_events_url"`
	FromFallback            string `json:"from_fallback"`

	KeyServiceURL       string         `json:"keyservice_url"`
	SignatureMaxAge     timex.Duration `json:"signature_max_age"`
	LogLevel            string         `json:"log_level"`
	ShutdownGracePeriod timex.Duration `json:"shutdown_grace_period"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrHTTP:             c.EndpointAddrHTTP,
		Host:                         c.Host,
		DatabaseDSN:                  c.DatabaseDSN,
		SecretKey:                    c.SecretKey,
		StorageType:                  c.StorageType,
		StorageLocation:              c.StorageLocation,
		StorageTokenValidityDuration: timex.Duration{Duration: c.StorageTokenValidityDuration},
		S3RootUser:                   c.S3RootUser,
		S3RootPassword:               c.S3RootPassword,
		S3Bucket:                     c.S3Bucket,
		S3Region:                     c.S3Region,
		S3BaseEndpoint:               c.S3BaseEndpoint,
		Notifier:                     c.Notifier,
		MailFrom:                     c.MailFrom,
		MailUser:                     c.MailUser,
		MailPass:                     c.MailPass,
		MailHost:                     c.MailHost,
		MailPort:                     c.MailPort,
		AllowedAttributes:            c.AllowedAttributes,
		MaximumFileSize:              c.MaximumFileSize,
		SubmissionsPerMinute:         c.SubmissionsPerMinute,
		SubmissionBurst:              c.SubmissionBurst,
		MailgunKey:                   c.MailgunKey,
		MailgunMessageURLPrefix:      c.MailgunMessageURLPrefix,
		MailgunEventsURL:             c.MailgunEventsURL,
		FromFallback:                 c.FromFallback,
		KeyServiceURL:                c.KeyServiceURL,
		SignatureMaxAge:              timex.Duration{Duration: c.SignatureMaxAge},
		LogLevel:                     c.LogLevel,
		ShutdownGracePeriod:          timex.Duration{Duration: c.ShutdownGracePeriod},
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.EndpointAddrHTTP = j.EndpointAddrHTTP
	c.Host = j.Host
	c.DatabaseDSN = j.DatabaseDSN
	c.SecretKey = j.SecretKey
	c.StorageType = j.StorageType
	c.StorageLocation = j.StorageLocation
	c.StorageTokenValidityDuration = j.StorageTokenValidityDuration.Duration
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.Notifier = j.Notifier
	c.MailFrom = j.MailFrom
	c.MailUser = j.MailUser
	c.MailPass = j.MailPass
	c.MailHost = j.MailHost
	c.MailPort = j.MailPort
	c.AllowedAttributes = j.AllowedAttributes
	c.MaximumFileSize = j.MaximumFileSize
	c.SubmissionsPerMinute = j.SubmissionsPerMinute
	c.SubmissionBurst = j.SubmissionBurst
	c.MailgunKey = j.MailgunKey
	c.MailgunMessageURLPrefix = j.MailgunMessageURLPrefix
	c.MailgunEventsURL = j.MailgunEventsURL
	c.FromFallback = j.FromFallback
	c.KeyServiceURL = j.KeyServiceURL
	c.SignatureMaxAge = j.SignatureMaxAge.Duration
	c.LogLevel = j.LogLevel
	c.ShutdownGracePeriod = j.ShutdownGracePeriod.Duration
}

// parseJson overlays the file named by -c/-config (or $TGUARD_CONFIG) onto
// config. Without a file it does nothing.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.apply(config)
	return nil
}
