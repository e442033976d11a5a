// Package services holds the backend use cases behind the HTTP API.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/tguard/internal/common"
	"github.com/dmitrijs2005/tguard/internal/dbx"
	"github.com/dmitrijs2005/tguard/internal/envelope"
	"github.com/dmitrijs2005/tguard/internal/logging"
	"github.com/dmitrijs2005/tguard/internal/server/models"
	"github.com/dmitrijs2005/tguard/internal/server/notifier"
	"github.com/dmitrijs2005/tguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tguard/internal/server/storage"
	"github.com/dmitrijs2005/tguard/internal/shared"
)

// DownloadPath is the public page a recipient opens; the message ID is
// appended.
const DownloadPath = "/download/"

// Policy is the server-side acceptance policy for submissions.
type Policy struct {
	AllowedAttributes []string
	// MaximumFileSize bounds the encoded length of each ciphertext.
	MaximumFileSize int
	// Host is the public base URL used in notification links.
	Host string
}

// MessageService stores submitted envelopes and looks them up again.
type MessageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	storage     storage.Storage
	notifier    notifier.Notifier
	policy      Policy
	log         logging.Logger
}

func NewMessageService(db *sql.DB, rm repomanager.RepositoryManager, st storage.Storage, n notifier.Notifier, p Policy, log logging.Logger) *MessageService {
	return &MessageService{db: db, repomanager: rm, storage: st, notifier: n, policy: p, log: log}
}

// Check applies validation and policy to sub without storing anything.
func (s *MessageService) Check(sub *shared.Submission) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}
	for _, rm := range sub.RecipientMessages {
		for _, a := range rm.Sealed.Attributes {
			if !slices.Contains(s.policy.AllowedAttributes, a.Identifier) {
				return fmt.Errorf("%w: %s", common.ErrorInvalidAttribute, a.Identifier)
			}
		}
		if len(rm.Sealed.Ciphertext) > s.policy.MaximumFileSize {
			return common.ErrorTooBig
		}
	}
	return nil
}

// Submit checks sub, then records a row and stores the JSON envelope for
// every recipient inside one transaction, so either all recipients are
// stored or none is. Recipients are notified after the commit. Returns the
// new message IDs in recipient order; on a notification failure the IDs are
// returned together with the error.
func (s *MessageService) Submit(ctx context.Context, sub *shared.Submission) ([]string, error) {
	if err := s.Check(sub); err != nil {
		return nil, err
	}

	msgs := make([]*models.Message, 0, len(sub.RecipientMessages))
	blobs := make([][]byte, 0, len(sub.RecipientMessages))
	for _, rm := range sub.RecipientMessages {
		blob, err := envelope.EncodeJSON(rm.Sealed)
		if err != nil {
			return nil, fmt.Errorf("encode envelope: %w", err)
		}
		msgs = append(msgs, &models.Message{
			ID:        common.NewMessageID(),
			From:      sub.From,
			To:        rm.To,
			Subject:   sub.Subject,
			Signature: sub.Signature,
		})
		blobs = append(blobs, blob)
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for i, msg := range msgs {
			if err := s.store(ctx, tx, msg, blobs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	ids := make([]string, len(msgs))
	var errs []error
	for i, msg := range msgs {
		ids[i] = msg.ID
		s.log.Info(ctx, "message stored", "id", msg.ID, "signed", msg.Signature != nil)
		if err := s.notify(ctx, msg, blobs[i]); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", msg.To, err))
		}
	}
	return ids, errors.Join(errs...)
}

// store inserts the row of msg and writes its envelope.
func (s *MessageService) store(ctx context.Context, tx dbx.DBTX, msg *models.Message, blob []byte) error {
	if err := s.repomanager.Messages(tx).Create(ctx, msg); err != nil {
		return err
	}
	return s.storage.Store(ctx, msg.ID, blob)
}

func (s *MessageService) notify(ctx context.Context, msg *models.Message, blob []byte) error {
	return s.notifier.Notify(ctx, notifier.Notification{
		ID:       msg.ID,
		From:     msg.From,
		To:       msg.To,
		Subject:  msg.Subject,
		URL:      s.downloadURL(msg.ID),
		Envelope: blob,
	})
}

func (s *MessageService) downloadURL(id string) string {
	return strings.TrimRight(s.policy.Host, "/") + DownloadPath + id
}

// Download returns the metadata of id and a URL for its envelope.
func (s *MessageService) Download(ctx context.Context, id string) (*shared.Download, error) {
	if !common.IsMessageID(id) {
		return nil, common.ErrorNotFound
	}

	msg, err := s.repomanager.Messages(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	link, err := s.storage.Locate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("locate envelope: %w", err)
	}

	return &shared.Download{
		ID:        msg.ID,
		From:      msg.From,
		To:        msg.To,
		Subject:   msg.Subject,
		Signature: msg.Signature,
		Content:   link,
	}, nil
}

// Serve returns the stored envelope of id when token grants it.
func (s *MessageService) Serve(ctx context.Context, id, token string) ([]byte, error) {
	return s.storage.Serve(ctx, id, token)
}
