package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/tguard/internal/client/models"
	"github.com/dmitrijs2005/tguard/internal/client/repositories/messages"
	"github.com/dmitrijs2005/tguard/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tguard/internal/cryptox"
	"github.com/dmitrijs2005/tguard/internal/dbx"
)

const (
	keySalt     = "salt"
	keyVerifier = "verifier"
)

var (
	ErrLocked          = errors.New("inbox is locked")
	ErrWrongPassphrase = errors.New("wrong inbox passphrase")
)

// InboxService keeps opened messages in the local database, encrypted under
// a key derived from the inbox passphrase.
type InboxService struct {
	db  *sql.DB
	key []byte
	rng io.Reader
	now func() time.Time
}

func NewInboxService(db *sql.DB) *InboxService {
	return &InboxService{db: db, rng: rand.Reader, now: time.Now}
}

func (s *InboxService) metadata(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

func (s *InboxService) messages(db dbx.DBTX) messages.Repository {
	return messages.NewSQLiteRepository(db)
}

// Unlock derives the inbox key from passphrase. On first use it stores a
// fresh salt and the verifier of the derived key; afterwards the derived key
// must match the stored verifier.
func (s *InboxService) Unlock(ctx context.Context, passphrase []byte) error {
	meta := s.metadata(s.db)

	salt, err := meta.Get(ctx, keySalt)
	if err != nil {
		return err
	}

	if salt == nil {
		salt, err = cryptox.NewSalt(s.rng)
		if err != nil {
			return err
		}
		key := cryptox.DeriveMasterKey(passphrase, salt)
		err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if err := s.metadata(tx).Set(ctx, keySalt, salt); err != nil {
				return err
			}
			return s.metadata(tx).Set(ctx, keyVerifier, cryptox.MakeVerifier(key))
		})
		if err != nil {
			return fmt.Errorf("initialise inbox: %w", err)
		}
		s.key = key
		return nil
	}

	verifier, err := meta.Get(ctx, keyVerifier)
	if err != nil {
		return err
	}
	key := cryptox.DeriveMasterKey(passphrase, salt)
	if subtle.ConstantTimeCompare(verifier, cryptox.MakeVerifier(key)) != 1 {
		return ErrWrongPassphrase
	}
	s.key = key
	return nil
}

// Unlocked reports whether Unlock succeeded.
func (s *InboxService) Unlocked() bool {
	return s.key != nil
}

// Save stores r, replacing an earlier copy of the same message.
func (s *InboxService) Save(ctx context.Context, r *models.Received) error {
	if !s.Unlocked() {
		return ErrLocked
	}

	ov, ovNonce, err := cryptox.SealRecord(r.Overview(), s.key, s.rng)
	if err != nil {
		return fmt.Errorf("encryption error: %w", err)
	}
	details, detailsNonce, err := cryptox.SealRecord(r, s.key, s.rng)
	if err != nil {
		return fmt.Errorf("encryption error: %w", err)
	}

	return s.messages(s.db).Save(ctx, &models.StoredMessage{
		ID:            r.ID,
		Overview:      ov,
		NonceOverview: ovNonce,
		Details:       details,
		NonceDetails:  detailsNonce,
		Signed:        r.Signed,
		OpenedAt:      s.now(),
	})
}

// List returns the inbox, most recently opened first.
func (s *InboxService) List(ctx context.Context) ([]models.InboxItem, error) {
	if !s.Unlocked() {
		return nil, ErrLocked
	}

	rows, err := s.messages(s.db).List(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]models.InboxItem, 0, len(rows))
	for _, row := range rows {
		var ov models.Overview
		if err := cryptox.OpenRecord(row.Overview, row.NonceOverview, s.key, &ov); err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", row.ID, err)
		}
		items = append(items, models.InboxItem{
			ID:       row.ID,
			From:     ov.From,
			Subject:  ov.Subject,
			Signed:   row.Signed,
			OpenedAt: row.OpenedAt,
		})
	}
	return items, nil
}

// Get returns the stored copy of message id.
func (s *InboxService) Get(ctx context.Context, id string) (*models.Received, error) {
	if !s.Unlocked() {
		return nil, ErrLocked
	}

	row, err := s.messages(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var r models.Received
	if err := cryptox.OpenRecord(row.Details, row.NonceDetails, s.key, &r); err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", id, err)
	}
	return &r, nil
}

// Delete removes message id from the inbox.
func (s *InboxService) Delete(ctx context.Context, id string) error {
	if !s.Unlocked() {
		return ErrLocked
	}
	return s.messages(s.db).DeleteByID(ctx, id)
}
