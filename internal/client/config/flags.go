package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/tguard/internal/flagx"
)

var cliFlags = []string{"-s", "-k", "-i", "-o", "-t", "-L"}

// parseFlags populates selected Config fields from command-line flags.
// args are filtered to the flags listed in cliFlags first, so loaders of
// other flags do not interfere.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "tguard backend base URL")
	fs.StringVar(&cfg.KeyServiceURL, "k", cfg.KeyServiceURL, "key service base URL")
	fs.StringVar(&cfg.InboxPath, "i", cfg.InboxPath, "inbox database path")
	fs.StringVar(&cfg.AttachmentDir, "o", cfg.AttachmentDir, "attachment directory")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "L", cfg.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, cliFlags)); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			cfg.RequestTimeout = time.Duration(*timeout) * time.Second
		}
	})
	return nil
}
