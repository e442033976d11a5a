package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/tguard/internal/client/models"
	"github.com/dmitrijs2005/tguard/internal/mimex"
	"github.com/dmitrijs2005/tguard/internal/netx"
	"github.com/dmitrijs2005/tguard/internal/seal"
	"github.com/dmitrijs2005/tguard/internal/shared"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

// SubmitPath is where sealed submissions are posted on the backend.
const SubmitPath = "/api"

var ErrNoSigner = errors.New("signing requested but no signer configured")

// PublicKeyProvider returns the base64 IBE public key to seal under.
type PublicKeyProvider interface {
	PublicKey(ctx context.Context) (string, error)
}

// SendService seals drafts for their recipients and submits them.
type SendService struct {
	keys   PublicKeyProvider
	signer signing.Signer
	api    *netx.Client
	server string
	rng    io.Reader
	now    func() time.Time
}

// NewSendService returns a SendService posting to serverURL. signer may be
// nil when drafts are never signed.
func NewSendService(keys PublicKeyProvider, signer signing.Signer, api *netx.Client, serverURL string) *SendService {
	return &SendService{
		keys:   keys,
		signer: signer,
		api:    api,
		server: strings.TrimRight(serverURL, "/"),
		rng:    rand.Reader,
		now:    time.Now,
	}
}

// Send encodes d as MIME, optionally signs it, seals one envelope per
// recipient and submits them. It returns the message IDs the backend
// assigned, in recipient order.
func (s *SendService) Send(ctx context.Context, d models.Draft) ([]string, error) {
	if len(d.Recipients) == 0 {
		return nil, seal.ErrNoRecipients
	}

	blob, err := mimex.Encode(d.Message, d.Attachments, s.rng)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	sub := &shared.Submission{From: d.From, Subject: d.Subject}

	if d.Sign {
		if s.signer == nil {
			return nil, ErrNoSigner
		}
		b := &signing.Binder{Signer: s.signer}
		rec, err := b.Sign(ctx, blob, []seal.Attribute{{Identifier: seal.EmailAttribute, Value: d.From}})
		if err != nil {
			return nil, err
		}
		sub.Signature = &rec.Signature
	}

	pk, err := s.keys.PublicKey(ctx)
	if err != nil {
		return nil, err
	}

	sub.RecipientMessages, err = seal.Seal(pk, d.Recipients, blob, uint64(s.now().Unix()), s.rng)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	if err := sub.Validate(); err != nil {
		return nil, err
	}

	var res shared.SubmitResult
	if err := s.api.JSON(ctx, http.MethodPost, s.server+SubmitPath, nil, sub, &res); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	return res.IDs, nil
}
