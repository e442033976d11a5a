package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tguard/internal/client/models"
	"github.com/dmitrijs2005/tguard/internal/common"
	"github.com/dmitrijs2005/tguard/internal/envelope"
	"github.com/dmitrijs2005/tguard/internal/mimex"
	"github.com/dmitrijs2005/tguard/internal/netx"
	"github.com/dmitrijs2005/tguard/internal/seal"
	"github.com/dmitrijs2005/tguard/internal/shared"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

// DownloadPath is the backend route of message metadata.
const DownloadPath = "/api/download/"

// SecretKeyProvider issues the base64 user secret key of an attribute
// identity to a caller holding a session token for it.
type SecretKeyProvider interface {
	UserSecretKey(ctx context.Context, attr seal.Attribute, timestamp uint64, token string) (string, error)
}

// ReceiveService downloads and opens messages.
type ReceiveService struct {
	keys     SecretKeyProvider
	verifier signing.Verifier
	api      *netx.Client
	server   string
}

// NewReceiveService returns a ReceiveService for the backend at serverURL.
// Signatures are checked with verifier; when it is nil no message is ever
// reported as signed.
func NewReceiveService(keys SecretKeyProvider, verifier signing.Verifier, api *netx.Client, serverURL string) *ReceiveService {
	return &ReceiveService{
		keys:     keys,
		verifier: verifier,
		api:      api,
		server:   strings.TrimRight(serverURL, "/"),
	}
}

// Open downloads message id and decrypts it with a key obtained under token.
func (s *ReceiveService) Open(ctx context.Context, id, token string) (*models.Received, error) {
	if !common.IsMessageID(id) {
		return nil, common.ErrorNotFound
	}

	var meta shared.Download
	if err := s.api.JSON(ctx, http.MethodGet, s.server+DownloadPath+id, nil, nil, &meta); err != nil {
		if netx.IsStatus(err, http.StatusNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("download metadata: %w", err)
	}

	blob, err := s.api.GetBytes(ctx, meta.Content)
	if err != nil {
		return nil, fmt.Errorf("download content: %w", err)
	}

	pt, attrs, err := s.Decrypt(ctx, blob, token)
	if err != nil {
		return nil, err
	}

	r := &models.Received{
		ID:         meta.ID,
		From:       meta.From,
		To:         meta.To,
		Subject:    meta.Subject,
		Attributes: attrs,
	}
	if meta.Signature != nil {
		b := &signing.Binder{Verifier: s.verifier}
		r.Signed = b.Verify(ctx, *meta.Signature, pt, meta.From)
	}
	r.Message, r.Attachments = mimex.DecodeOrRaw(pt)
	return r, nil
}

// Decrypt opens an envelope in either wire format and returns the plaintext
// together with the attributes it was sealed for.
func (s *ReceiveService) Decrypt(ctx context.Context, blob []byte, token string) ([]byte, []seal.Attribute, error) {
	format, err := envelope.Sniff(blob)
	if err != nil {
		return nil, nil, err
	}

	switch format {
	case envelope.FormatJSON:
		sm, err := envelope.DecodeJSON(blob)
		if err != nil {
			return nil, nil, err
		}
		usk, err := s.keys.UserSecretKey(ctx, sm.Attributes[0], sm.Timestamp, token)
		if err != nil {
			return nil, nil, err
		}
		pt, err := seal.Unseal(sm, usk)
		if err != nil {
			return nil, nil, err
		}
		return pt, sm.Attributes, nil

	case envelope.FormatLegacy:
		res, err := envelope.ParseLegacy(blob)
		if err != nil {
			return nil, nil, err
		}
		attr := res.Metadata.Attribute
		b64, err := s.keys.UserSecretKey(ctx, attr, res.Metadata.Timestamp, token)
		if err != nil {
			return nil, nil, err
		}
		usk, err := seal.UserSecretKeyFromBase64(b64)
		if err != nil {
			return nil, nil, err
		}
		pt, err := envelope.OpenLegacy(blob, usk)
		if err != nil {
			return nil, nil, err
		}
		return pt, []seal.Attribute{attr}, nil
	}

	return nil, nil, envelope.ErrFormatUnrecognized
}

// OpenFile decrypts an envelope saved from a notification mail.
func (s *ReceiveService) OpenFile(ctx context.Context, blob []byte, token string) (*models.Received, error) {
	pt, attrs, err := s.Decrypt(ctx, blob, token)
	if err != nil {
		return nil, err
	}
	r := &models.Received{Attributes: attrs}
	if len(attrs) > 0 {
		r.To = attrs[0].Value
	}
	r.Message, r.Attachments = mimex.DecodeOrRaw(pt)
	return r, nil
}
