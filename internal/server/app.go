// Package server initializes and runs the tguard backend.
// It opens the database and runs migrations, selects the storage and
// notification backends, and serves the HTTP API until it is signalled.
package server

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tguard/internal/attest"
	"github.com/dmitrijs2005/tguard/internal/keyservice"
	"github.com/dmitrijs2005/tguard/internal/logging"
	"github.com/dmitrijs2005/tguard/internal/netx"
	"github.com/dmitrijs2005/tguard/internal/server/config"
	"github.com/dmitrijs2005/tguard/internal/server/httpapi"
	"github.com/dmitrijs2005/tguard/internal/server/notifier"
	"github.com/dmitrijs2005/tguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tguard/internal/server/services"
	"github.com/dmitrijs2005/tguard/internal/server/storage"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	messageService *services.MessageService
	ingestService  *services.IngestService
	verifier       signing.Verifier
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, "json", c.LogLevel)

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	st, err := storage.New(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	n, err := newNotifier(c, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("notifier init error: %w", err)
	}

	var v signing.Verifier
	if v, err = newVerifier(ctx, c); err != nil {
		// the backend still accepts and serves messages without it
		logger.Warn(ctx, "signature verification disabled", "error", err)
	}

	ms := services.NewMessageService(db, rm, st, n, services.Policy{
		AllowedAttributes: c.AllowedAttributes,
		MaximumFileSize:   c.MaximumFileSize,
		Host:              c.Host,
	}, logger)

	app := &App{config: c, logger: logger, db: db, messageService: ms, verifier: v}
	if c.IngestEnabled() {
		app.ingestService = services.NewIngestService(db, rm, st, n, netx.New(30*time.Second), services.Mailgun{
			Key:              c.MailgunKey,
			MessageURLPrefix: c.MailgunMessageURLPrefix,
			EventsURL:        c.MailgunEventsURL,
			FromFallback:     c.FromFallback,
			Host:             c.Host,
		}, logger)
	}
	return app, nil
}

func newNotifier(c *config.Config, l logging.Logger) (notifier.Mailer, error) {
	switch c.Notifier {
	case config.NotifierSMTP:
		return notifier.NewSMTPNotifier(c.MailHost, c.MailPort, c.MailFrom, c.MailUser, c.MailPass)
	case config.NotifierLog:
		return notifier.NewLogNotifier(l), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", c.Notifier)
	}
}

// newVerifier builds the attestation verifier from the issuer key the key
// service publishes.
func newVerifier(ctx context.Context, c *config.Config) (signing.Verifier, error) {
	if c.KeyServiceURL == "" {
		return nil, fmt.Errorf("no key service configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	params, err := keyservice.NewClient(c.KeyServiceURL, netx.New(5*time.Second)).Parameters(ctx)
	if err != nil {
		return nil, err
	}
	if params.IssuerKey == "" {
		return nil, fmt.Errorf("key service publishes no issuer key")
	}
	key, err := base64.StdEncoding.DecodeString(params.IssuerKey)
	if err != nil {
		return nil, fmt.Errorf("decode issuer key: %w", err)
	}
	v, err := attest.NewVerifier(key, c.SignatureMaxAge)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	rl := httpapi.NewRateLimiter(app.config.SubmissionsPerMinute, app.config.SubmissionBurst)
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.messageService, app.verifier, rl)
	s.ShutdownGracePeriod = app.config.ShutdownGracePeriod
	if app.ingestService != nil {
		s.WithIngest(app.ingestService)
	}

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
