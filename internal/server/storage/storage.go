// Package storage keeps sealed envelopes and hands out URLs from which a
// recipient can fetch them.
package storage

import (
	"context"
	"fmt"

	sc "github.com/dmitrijs2005/tguard/internal/server/config"
)

// Storage is the capability the message service needs from a backend.
type Storage interface {
	// Store saves data under the message id.
	Store(ctx context.Context, id string, data []byte) error
	// Locate returns a URL from which the envelope of id can be fetched.
	Locate(ctx context.Context, id string) (string, error)
	// Serve returns the stored bytes of id for a request carrying token.
	// Backends that hand out direct URLs return common.ErrorNotFound.
	Serve(ctx context.Context, id, token string) ([]byte, error)
}

// New builds the backend selected by cfg.StorageType.
func New(ctx context.Context, cfg *sc.Config) (Storage, error) {
	switch cfg.StorageType {
	case sc.StorageLocal:
		return NewLocalStorage(cfg.StorageLocation, cfg.Host, []byte(cfg.SecretKey), cfg.StorageTokenValidityDuration)
	case sc.StorageS3:
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
}
