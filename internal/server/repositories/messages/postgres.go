package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tguard/internal/common"
	"github.com/dmitrijs2005/tguard/internal/dbx"
	"github.com/dmitrijs2005/tguard/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a message row. Exactly one row must be affected.
func (r *PostgresRepository) Create(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, from_address, to_address, subject, signature)
		VALUES ($1, $2, $3, $4, $5)
	`
	res, err := r.db.ExecContext(ctx, query, msg.ID, msg.From, msg.To, msg.Subject, msg.Signature)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// GetByID returns the row for id, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT id, from_address, to_address, subject, signature, created_at FROM messages WHERE id = $1`

	var (
		m   models.Message
		sig sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.From, &m.To, &m.Subject, &sig, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select message: %w", err)
	}
	if sig.Valid {
		m.Signature = &sig.String
	}
	return &m, nil
}
