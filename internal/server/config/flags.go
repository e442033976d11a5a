package config

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/tguard/internal/flagx"
)

var serverFlags = []string{"-a", "-H", "-d", "-s", "-t", "-S", "-l", "-u", "-p", "-b", "-g", "-e", "-n", "-m", "-P", "-A", "-z", "-k", "-M", "-L"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-H string   public base URL
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      storage token validity, minutes
//	-S string   storage type ("local" or "s3")
//	-l string   local storage directory
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-n string   notifier ("log" or "smtp")
//	-m string   SMTP host
//	-P int      SMTP port
//	-A string   comma separated allowed attribute types
//	-z int      maximum ciphertext size, bytes
//	-k string   key service base URL
//	-M string   Mailgun API key, enables mail ingest
//	-L string   log level
//
// Flags owned by other loaders (-c, -config) are filtered out first.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.Host, "H", config.Host, "public base URL")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.StorageTokenValidityDuration.Minutes()), "storage token validity (in minutes)")

	fs.StringVar(&config.StorageType, "S", config.StorageType, "storage type")
	fs.StringVar(&config.StorageLocation, "l", config.StorageLocation, "local storage directory")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.Notifier, "n", config.Notifier, "notifier")
	fs.StringVar(&config.MailHost, "m", config.MailHost, "SMTP host")
	fs.IntVar(&config.MailPort, "P", config.MailPort, "SMTP port")

	allowed := fs.String("A", strings.Join(config.AllowedAttributes, ","), "allowed attribute types")
	fs.IntVar(&config.MaximumFileSize, "z", config.MaximumFileSize, "maximum ciphertext size")
	fs.StringVar(&config.KeyServiceURL, "k", config.KeyServiceURL, "key service base URL")
	fs.StringVar(&config.MailgunKey, "M", config.MailgunKey, "Mailgun API key")
	fs.StringVar(&config.LogLevel, "L", config.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.StorageTokenValidityDuration = minutes(*tokenValidity)
		case "A":
			config.AllowedAttributes = splitList(*allowed)
		}
	})
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
