package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tguard/internal/flagx"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func defaults() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, ":8000", c.EndpointAddrHTTP)
	assert.Equal(t, StorageLocal, c.StorageType)
	assert.Equal(t, NotifierLog, c.Notifier)
	assert.Equal(t, []string{"pbdf.sidn-pbdf.email.email"}, c.AllowedAttributes)
	assert.Equal(t, 30*time.Minute, c.StorageTokenValidityDuration)
	require.NoError(t, c.Validate())
	assert.False(t, c.IngestEnabled())
}

func TestLoadConfig_DefaultsOnly(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")

	c, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(defaults(), c))
}

func TestLoadConfig_JSONThenFlags(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")

	path := writeTempJSON(t, map[string]any{
		"host":                            "https://tguard.example",
		"database_dsn":                    "postgres://db/tguard",
		"storage_type":                    "s3",
		"storage_token_validity_duration": "90s",
		"s3_bucket":                       "sealed",
		"allowed_attributes":              []string{"pbdf.sidn-pbdf.email.email", "pbdf.gemeente.personalData.bsn"},
		"maximum_file_size":               1024,
		"signature_max_age":               "1h",
		"mailgun_key":                     "key-123",
		"from_fallback":                   "fallback@tguard.example",
	})

	c, err := LoadConfig([]string{"-c", path, "-a", "127.0.0.1:9090", "-b", "from-flag", "-z", "2048"})
	require.NoError(t, err)

	want := defaults()
	want.Host = "https://tguard.example"
	want.DatabaseDSN = "postgres://db/tguard"
	want.StorageType = StorageS3
	want.StorageTokenValidityDuration = 90 * time.Second
	want.S3Bucket = "from-flag"
	want.AllowedAttributes = []string{"pbdf.sidn-pbdf.email.email", "pbdf.gemeente.personalData.bsn"}
	want.MaximumFileSize = 2048
	want.SignatureMaxAge = time.Hour
	want.EndpointAddrHTTP = "127.0.0.1:9090"
	want.MailgunKey = "key-123"
	want.FromFallback = "fallback@tguard.example"

	assert.Empty(t, cmp.Diff(want, c))
	assert.True(t, c.IngestEnabled())
}

func TestParseFlags(t *testing.T) {
	c := defaults()
	err := parseFlags(c, []string{
		"-a", ":1", "-H", "http://h", "-d", "db", "-s", "secret", "-t", "5",
		"-S", "s3", "-l", "/srv", "-u", "user", "-p", "password", "-b", "bucket", "-g", "eu-west-1", "-e", "http://minio",
		"-n", "smtp", "-m", "mail", "-P", "587", "-A", "a.b.c, d.e.f,", "-z", "10", "-k", "http://pkg", "-M", "key-123", "-L", "debug",
		"-unknown", "ignored",
	})
	require.NoError(t, err)

	want := defaults()
	want.EndpointAddrHTTP = ":1"
	want.Host = "http://h"
	want.DatabaseDSN = "db"
	want.SecretKey = "secret"
	want.StorageTokenValidityDuration = 5 * time.Minute
	want.StorageType = "s3"
	want.StorageLocation = "/srv"
	want.S3RootUser = "user"
	want.S3RootPassword = "password"
	want.S3Bucket = "bucket"
	want.S3Region = "eu-west-1"
	want.S3BaseEndpoint = "http://minio"
	want.Notifier = "smtp"
	want.MailHost = "mail"
	want.MailPort = 587
	want.AllowedAttributes = []string{"a.b.c", "d.e.f"}
	want.MaximumFileSize = 10
	want.KeyServiceURL = "http://pkg"
	want.MailgunKey = "key-123"
	want.LogLevel = "debug"

	assert.Empty(t, cmp.Diff(want, c))
}

func TestParseFlags_BadValue(t *testing.T) {
	require.Error(t, parseFlags(defaults(), []string{"-P", "not-a-port"}))
}

func TestParseJson(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")

	t.Run("missing keys keep defaults", func(t *testing.T) {
		c := defaults()
		require.NoError(t, parseJson(c, []string{"-config", writeTempJSON(t, map[string]any{"mail_port": 2525})}))
		assert.Equal(t, 2525, c.MailPort)
		assert.Equal(t, "localhost", c.MailHost)
	})

	t.Run("environment names the file", func(t *testing.T) {
		t.Setenv(flagx.ConfigEnv, writeTempJSON(t, map[string]any{"notifier": "smtp"}))
		c := defaults()
		require.NoError(t, parseJson(c, nil))
		assert.Equal(t, NotifierSMTP, c.Notifier)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		require.Error(t, parseJson(defaults(), []string{"-c", bad}))
	})

	t.Run("missing file", func(t *testing.T) {
		require.Error(t, parseJson(defaults(), []string{"-c", filepath.Join(t.TempDir(), "nope.json")}))
	})
}

func TestValidate(t *testing.T) {
	c := defaults()
	c.StorageType = "gcs"
	c.Notifier = "pigeon"
	c.MaximumFileSize = 0
	c.AllowedAttributes = nil
	c.SecretKey = ""

	err := c.Validate()
	require.Error(t, err)
	for _, want := range []string{"gcs", "pigeon", "maximum_file_size", "allowed_attributes", "secret_key"} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = LoadConfig([]string{"-S", "gcs"})
	require.Error(t, err)
}

func TestValidate_IngestNeedsPrefix(t *testing.T) {
	c := defaults()
	c.MailgunKey = "key-123"
	require.NoError(t, c.Validate())

	c.MailgunMessageURLPrefix = ""
	require.ErrorContains(t, c.Validate(), "mailgun_message_url_prefix")
}
