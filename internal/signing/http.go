package signing

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/tguard/internal/netx"
)

// VerifyRequest is the body of POST /api/verify.
type VerifyRequest struct {
	Signature string `json:"signature"`
}

// VerifyResponse is its reply. Statement and Attributes are only
// meaningful when Valid is set.
type VerifyResponse struct {
	Valid      bool              `json:"valid"`
	Statement  string            `json:"statement,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// HTTPVerifier asks a remote verification endpoint.
type HTTPVerifier struct {
	URL    string
	Client *netx.Client
}

// Verify implements Verifier.
func (v *HTTPVerifier) Verify(ctx context.Context, signature string) (*Disclosure, error) {
	var resp VerifyResponse
	if err := v.Client.JSON(ctx, http.MethodPost, v.URL, nil, VerifyRequest{Signature: signature}, &resp); err != nil {
		return nil, err
	}
	if !resp.Valid {
		return nil, ErrInvalidProof
	}
	return &Disclosure{Statement: resp.Statement, Attributes: resp.Attributes}, nil
}
