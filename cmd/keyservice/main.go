// Command keyservice runs the development key service: it publishes the
// IBE parameters and hands out user secret keys and attestations to any
// caller presenting the configured token.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tguard/internal/attest"
	"github.com/dmitrijs2005/tguard/internal/buildinfo"
	"github.com/dmitrijs2005/tguard/internal/ibe"
	"github.com/dmitrijs2005/tguard/internal/keyservice"
	"github.com/dmitrijs2005/tguard/internal/logging"
	"github.com/dmitrijs2005/tguard/internal/shared"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	addr := flag.String("a", ":8087", "listen address")
	token := flag.String("t", "", "session token accepted by the service (random if empty)")
	masterPath := flag.String("m", "", "file holding the master key; created when missing")
	level := flag.String("L", "info", "log level")
	flag.Parse()

	logger := logging.New(os.Stdout, "json", *level).With("module", "keyservice")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	mk, err := loadMasterKey(*masterPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	issuer, err := attest.NewIssuer(rand.Reader)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *token == "" {
		if *token, err = shared.MakeRandHexString(16); err != nil {
			log.Fatalf("%v", err)
		}
		logger.Warn(ctx, "generated session token", "token", *token)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           keyservice.NewDevServer(mk, issuer, *token, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info(context.Background(), "Stopping key service...")
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "Starting key service", "address", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, "key service failed", "error", err)
		os.Exit(1)
	}
}

// loadMasterKey reads the master key at path, generating and storing a new
// one when the file does not exist. An empty path yields an ephemeral key.
func loadMasterKey(path string) (*ibe.MasterKey, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return ibe.UnmarshalMasterKey(data)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	_, mk, err := ibe.Setup(rand.Reader)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := os.WriteFile(path, mk.Marshal(), 0o600); err != nil {
			return nil, err
		}
	}
	return mk, nil
}
