// Package keyservice talks to the private key generator that publishes the
// IBE public parameters and issues user secret keys to callers that have
// proven an attribute. It also contains a development server that plays
// that role locally.
package keyservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/tguard/internal/netx"
	"github.com/dmitrijs2005/tguard/internal/seal"
)

// StatusValid is the only key request status that carries a key.
const StatusValid = "DONE_VALID"

// Endpoint paths relative to the service base URL.
const (
	ParametersPath = "/v2/parameters"
	KeyPath        = "/v2/request/key/{timestamp}"
	SignPath       = "/v2/sign"
)

var (
	// ErrKeyNotIssued is returned when the service answers without a valid key.
	ErrKeyNotIssued = errors.New("user secret key not issued")
	// ErrUnauthorized is returned when the session token is rejected.
	ErrUnauthorized = errors.New("key service rejected session token")
)

// Parameters are the public values the service publishes.
type Parameters struct {
	PublicKey string `json:"public_key"`
	IssuerKey string `json:"issuer_key,omitempty"`
}

// KeyRequest asks for the key of one attribute identity.
type KeyRequest struct {
	Attribute seal.Attribute `json:"attribute"`
}

// KeyResponse carries the issued key when Status is StatusValid.
type KeyResponse struct {
	Status string `json:"status"`
	Key    string `json:"key,omitempty"`
}

// SignRequest asks the service to attest a statement.
type SignRequest struct {
	Statement  string           `json:"statement"`
	Attributes []seal.Attribute `json:"attributes"`
}

// SignResponse carries the opaque attestation.
type SignResponse struct {
	Signature string `json:"signature"`
}

// Client calls a key service.
type Client struct {
	base string
	http *netx.Client
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, hc *netx.Client) *Client {
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

// Parameters fetches the published parameters.
func (c *Client) Parameters(ctx context.Context) (*Parameters, error) {
	var p Parameters
	if err := c.http.JSON(ctx, http.MethodGet, c.base+ParametersPath, nil, nil, &p); err != nil {
		return nil, fmt.Errorf("fetch parameters: %w", err)
	}
	if p.PublicKey == "" {
		return nil, errors.New("fetch parameters: empty public key")
	}
	return &p, nil
}

// PublicKey returns the base64 IBE public key.
func (c *Client) PublicKey(ctx context.Context) (string, error) {
	p, err := c.Parameters(ctx)
	if err != nil {
		return "", err
	}
	return p.PublicKey, nil
}

// UserSecretKey requests the base64 key for (attr, timestamp). token is the
// session token proving the caller owns attr.
func (c *Client) UserSecretKey(ctx context.Context, attr seal.Attribute, timestamp uint64, token string) (string, error) {
	url := c.base + strings.Replace(KeyPath, "{timestamp}", strconv.FormatUint(timestamp, 10), 1)

	var resp KeyResponse
	if err := c.http.JSON(ctx, http.MethodPost, url, bearer(token), KeyRequest{Attribute: attr}, &resp); err != nil {
		if netx.IsStatus(err, http.StatusUnauthorized) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("request key: %w", err)
	}
	if resp.Status != StatusValid || resp.Key == "" {
		return "", fmt.Errorf("%w: status %q", ErrKeyNotIssued, resp.Status)
	}
	return resp.Key, nil
}

// Signer returns a signing.Signer that has the service attest statements
// under the given session token.
func (c *Client) Signer(token string) *RemoteSigner {
	return &RemoteSigner{c: c, token: token}
}

// RemoteSigner attests statements through the key service.
type RemoteSigner struct {
	c     *Client
	token string
}

// Sign implements signing.Signer.
func (s *RemoteSigner) Sign(ctx context.Context, statement string, attrs []seal.Attribute) (string, error) {
	var resp SignResponse
	req := SignRequest{Statement: statement, Attributes: attrs}
	if err := s.c.http.JSON(ctx, http.MethodPost, s.c.base+SignPath, bearer(s.token), req, &resp); err != nil {
		if netx.IsStatus(err, http.StatusUnauthorized) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("request attestation: %w", err)
	}
	return resp.Signature, nil
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
