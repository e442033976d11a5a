package metadata

import (
	"context"
)

// Repository is a small key/value table holding inbox settings such as the
// passphrase salt and verifier.
type Repository interface {
	// Get returns (nil, nil) when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context) error
}
