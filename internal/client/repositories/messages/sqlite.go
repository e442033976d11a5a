package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tguard/internal/client/models"
	"github.com/dmitrijs2005/tguard/internal/common"
	"github.com/dmitrijs2005/tguard/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, m *models.StoredMessage) error {
	query := `INSERT INTO messages (id, overview, nonce_overview, details, nonce_details, signed, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET overview = excluded.overview,
				nonce_overview = excluded.nonce_overview,
				details = excluded.details,
				nonce_details = excluded.nonce_details,
				signed = excluded.signed,
				opened_at = excluded.opened_at
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.Overview, m.NonceOverview, m.Details, m.NonceDetails, m.Signed, m.OpenedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.StoredMessage, error) {
	query := `SELECT id, overview, nonce_overview, signed, opened_at FROM messages ORDER BY opened_at DESC, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []models.StoredMessage
	for rows.Next() {
		var m models.StoredMessage
		if err := rows.Scan(&m.ID, &m.Overview, &m.NonceOverview, &m.Signed, &m.OpenedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.StoredMessage, error) {
	query := `SELECT id, overview, nonce_overview, details, nonce_details, signed, opened_at FROM messages WHERE id = ?`

	m := &models.StoredMessage{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&m.ID, &m.Overview, &m.NonceOverview, &m.Details, &m.NonceDetails, &m.Signed, &m.OpenedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}
