package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tguard/internal/common"
	"github.com/dmitrijs2005/tguard/internal/dbx"
	"github.com/dmitrijs2005/tguard/internal/logging"
	"github.com/dmitrijs2005/tguard/internal/netx"
	"github.com/dmitrijs2005/tguard/internal/server/models"
	"github.com/dmitrijs2005/tguard/internal/server/notifier"
	"github.com/dmitrijs2005/tguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tguard/internal/server/storage"
)

var (
	ErrInvalidAPIURL = fmt.Errorf("%w: invalid API url", common.ErrorValidation)
	ErrMissingData   = fmt.Errorf("%w: no sealed attachment", common.ErrorValidation)
)

// Mailgun configures where stored mail is fetched from.
type Mailgun struct {
	Key string
	// MessageURLPrefix is the only origin message URLs may point to.
	MessageURLPrefix string
	// EventsURL lists stored events for Poll.
	EventsURL string
	// FromFallback is recorded when the forwarded mail names no sender.
	FromFallback string
	// Host is the public base URL used in confirmation links.
	Host string
}

type mailgunAttachment struct {
	ContentType string `json:"content-type"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
}

type mailgunMessage struct {
	Sender      string              `json:"sender"`
	Subject     string              `json:"subject"`
	BodyPlain   string              `json:"body-plain"`
	MessageID   string              `json:"Message-Id"`
	Attachments []mailgunAttachment `json:"attachments"`
}

type mailgunEvents struct {
	Items []struct {
		Storage struct {
			URL string `json:"url"`
		} `json:"storage"`
	} `json:"items"`
}

// IngestService stores sealed mail that was forwarded to the Mailgun inbox
// and confirms it to the forwarder.
type IngestService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	storage     storage.Storage
	confirmer   notifier.Confirmer
	client      *netx.Client
	mailgun     Mailgun
	log         logging.Logger
}

func NewIngestService(db *sql.DB, rm repomanager.RepositoryManager, st storage.Storage, c notifier.Confirmer, hc *netx.Client, mg Mailgun, log logging.Logger) *IngestService {
	return &IngestService{db: db, repomanager: rm, storage: st, confirmer: c, client: hc, mailgun: mg, log: log}
}

// Process fetches the stored mail at messageURL, records its sealed
// attachment as a new message and mails a confirmation to the forwarder.
// The new ID is returned even when only the confirmation failed.
func (s *IngestService) Process(ctx context.Context, messageURL string) (string, error) {
	if s.mailgun.MessageURLPrefix == "" || !strings.HasPrefix(messageURL, s.mailgun.MessageURLPrefix) {
		return "", ErrInvalidAPIURL
	}

	var m mailgunMessage
	if err := s.client.JSON(ctx, http.MethodGet, messageURL, s.auth(), nil, &m); err != nil {
		return "", fmt.Errorf("fetch message: %w", err)
	}

	att := sealedAttachment(m.Attachments)
	if att == nil {
		return "", ErrMissingData
	}
	data, err := s.client.Do(ctx, http.MethodGet, att.URL, nil, "", s.auth())
	if err != nil {
		return "", fmt.Errorf("fetch attachment: %w", err)
	}

	from, ok := extractOriginalFrom(m.BodyPlain)
	if !ok || from == "" {
		from = s.mailgun.FromFallback
	}
	msg := &models.Message{
		ID:      common.NewMessageID(),
		From:    from,
		To:      m.Sender,
		Subject: m.Subject,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Messages(tx).Create(ctx, msg); err != nil {
			return err
		}
		return s.storage.Store(ctx, msg.ID, data)
	})
	if err != nil {
		return "", fmt.Errorf("store message: %w", err)
	}
	s.log.Info(ctx, "forwarded message stored", "id", msg.ID, "mailgun_id", m.MessageID)

	err = s.confirmer.Confirm(ctx, notifier.Confirmation{
		ID:      msg.ID,
		To:      msg.To,
		Subject: msg.Subject,
		URL:     strings.TrimRight(s.mailgun.Host, "/") + DownloadPath + msg.ID,
	})
	if err != nil {
		return msg.ID, fmt.Errorf("confirm %s: %w", msg.To, err)
	}
	return msg.ID, nil
}

// Poll processes every message listed by the stored events feed. A failing
// message does not stop the rest; the IDs of the stored ones are returned
// with the joined errors.
func (s *IngestService) Poll(ctx context.Context) ([]string, error) {
	var ev mailgunEvents
	if err := s.client.JSON(ctx, http.MethodGet, s.mailgun.EventsURL, s.auth(), nil, &ev); err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	var ids []string
	var errs []error
	for _, item := range ev.Items {
		id, err := s.Process(ctx, item.Storage.URL)
		if id != "" {
			ids = append(ids, id)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.Storage.URL, err))
		}
	}
	return ids, errors.Join(errs...)
}

func (s *IngestService) auth() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("api:"+s.mailgun.Key)))
	return h
}

func sealedAttachment(atts []mailgunAttachment) *mailgunAttachment {
	for i := range atts {
		if atts[i].ContentType == common.SealedContentType || atts[i].Name == common.SealedFileName {
			return &atts[i]
		}
	}
	return nil
}

// extractOriginalFrom finds the address on the first "From: " line of a
// forwarded body. "Name <addr>" yields addr.
func extractOriginalFrom(body string) (string, bool) {
	_, rest, ok := strings.Cut(body, "\r\nFrom: ")
	if !ok {
		return "", false
	}
	line, _, ok := strings.Cut(rest, "\r\n")
	if !ok {
		return "", false
	}
	line = strings.TrimSpace(line)

	_, addr, ok := strings.Cut(line, "<")
	if !ok {
		return line, true
	}
	addr, _, ok = strings.Cut(addr, ">")
	if !ok {
		return "", false
	}
	return addr, true
}
