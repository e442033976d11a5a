// Package cli is the interactive tguard client: it sends sealed messages,
// opens received ones and browses the local encrypted inbox.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/tguard/internal/client/config"
	"github.com/dmitrijs2005/tguard/internal/client/database"
	"github.com/dmitrijs2005/tguard/internal/client/models"
	"github.com/dmitrijs2005/tguard/internal/client/services"
	"github.com/dmitrijs2005/tguard/internal/keyservice"
	"github.com/dmitrijs2005/tguard/internal/logging"
	"github.com/dmitrijs2005/tguard/internal/netx"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

// Sender submits drafts.
type Sender interface {
	Send(ctx context.Context, d models.Draft) ([]string, error)
}

// Opener opens downloaded or saved envelopes.
type Opener interface {
	Open(ctx context.Context, id, token string) (*models.Received, error)
	OpenFile(ctx context.Context, blob []byte, token string) (*models.Received, error)
}

// Inbox keeps opened messages.
type Inbox interface {
	Unlock(ctx context.Context, passphrase []byte) error
	Unlocked() bool
	Save(ctx context.Context, r *models.Received) error
	List(ctx context.Context) ([]models.InboxItem, error)
	Get(ctx context.Context, id string) (*models.Received, error)
	Delete(ctx context.Context, id string) error
}

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	sender Sender
	opener Opener
	inbox  Inbox
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stderr, "text", c.LogLevel).With("module", "cli")

	db, err := database.InitDatabase(ctx, c.InboxPath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	hc := netx.New(c.RequestTimeout)
	hc.Notify = func(err error, next time.Duration) {
		logger.Warn(ctx, "request failed, retrying", "error", err, "in", next)
	}

	keys := keyservice.NewClient(c.KeyServiceURL, hc)
	verifier := &signing.HTTPVerifier{URL: c.ServerURL + "/api/verify", Client: hc}

	a := &App{
		config: c,
		logger: logger,
		db:     db,
		opener: services.NewReceiveService(keys, verifier, hc, c.ServerURL),
		inbox:  services.NewInboxService(db),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
	a.sender = &lazySigner{keys: keys, hc: hc, server: c.ServerURL}
	return a, nil
}

// lazySigner builds a SendService whose signer uses the session token of
// the current draft, which is only known once the user has entered it.
type lazySigner struct {
	keys   *keyservice.Client
	hc     *netx.Client
	server string
	token  string
}

func (l *lazySigner) Send(ctx context.Context, d models.Draft) ([]string, error) {
	var signer signing.Signer
	if d.Sign {
		signer = l.keys.Signer(l.token)
	}
	return services.NewSendService(l.keys, signer, l.hc, l.server).Send(ctx, d)
}

func (l *lazySigner) setToken(token string) {
	l.token = token
}

func (a *App) Run(ctx context.Context) {
	defer a.db.Close()
	a.Root(ctx)
}
