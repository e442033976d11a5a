// Package messages persists opened messages in the local inbox database.
package messages

import (
	"context"

	"github.com/dmitrijs2005/tguard/internal/client/models"
)

// Repository stores encrypted inbox rows.
type Repository interface {
	// Save inserts m, or replaces the row with the same ID.
	Save(ctx context.Context, m *models.StoredMessage) error

	// List returns all rows, most recently opened first, without Details.
	List(ctx context.Context) ([]models.StoredMessage, error)

	// GetByID returns one full row or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.StoredMessage, error)

	// DeleteByID removes one row; it expects exactly one row to be affected.
	DeleteByID(ctx context.Context, id string) error
}
