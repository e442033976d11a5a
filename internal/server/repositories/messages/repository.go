// Package messages persists the metadata rows of stored envelopes.
package messages

import (
	"context"

	"github.com/dmitrijs2005/tguard/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
}
