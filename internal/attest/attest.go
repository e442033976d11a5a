// Package attest is a local attribute attestation service. An Issuer signs
// statements together with the attributes it vouches for; a Verifier pinned
// to the issuer's public key checks them and reports the disclosure.
//
// Signatures are compact strings: base64url(claims JSON) "." base64url(ML-DSA-44 signature).
package attest

import (
	"context"
	"crypto"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"

	"github.com/dmitrijs2005/tguard/internal/seal"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

var (
	ErrMalformed   = errors.New("malformed attestation")
	ErrBadSig      = fmt.Errorf("%w: bad issuer signature", signing.ErrSignatureMismatch)
	ErrExpired     = fmt.Errorf("%w: attestation expired", signing.ErrSignatureMismatch)
	ErrInvalidKey  = errors.New("invalid issuer public key")
	ErrNoAttribute = errors.New("no attributes to attest")
)

// domain separates attestation signatures from any other use of the key.
const domain = "tguard-attestation-v1\x00"

// Claims is the signed content of an attestation.
type Claims struct {
	Statement  string            `json:"statement"`
	Attributes map[string]string `json:"attributes"`
	IssuedAt   int64             `json:"iat"`
}

// Issuer signs attestations.
type Issuer struct {
	sk  *mldsa44.PrivateKey
	pk  *mldsa44.PublicKey
	now func() time.Time
}

// NewIssuer creates an issuer with a fresh key drawn from rng.
func NewIssuer(rng io.Reader) (*Issuer, error) {
	pk, sk, err := mldsa44.GenerateKey(rng)
	if err != nil {
		return nil, fmt.Errorf("generate issuer key: %w", err)
	}
	return &Issuer{sk: sk, pk: pk, now: time.Now}, nil
}

// PublicKey returns the marshaled issuer key to pin in verifiers.
func (i *Issuer) PublicKey() []byte {
	b, _ := i.pk.MarshalBinary()
	return b
}

// Sign implements signing.Signer.
func (i *Issuer) Sign(_ context.Context, statement string, attrs []seal.Attribute) (string, error) {
	if len(attrs) == 0 {
		return "", ErrNoAttribute
	}
	c := Claims{
		Statement:  statement,
		Attributes: make(map[string]string, len(attrs)),
		IssuedAt:   i.now().Unix(),
	}
	for _, a := range attrs {
		c.Attributes[a.Identifier] = a.Value
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sig, err := i.sk.Sign(rand.Reader, signedBytes(payload), crypto.Hash(0))
	if err != nil {
		return "", fmt.Errorf("sign attestation: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verifier checks attestations from one issuer.
type Verifier struct {
	pk     *mldsa44.PublicKey
	maxAge time.Duration
	now    func() time.Time
}

// NewVerifier pins the marshaled issuer key. A zero maxAge accepts
// attestations of any age.
func NewVerifier(issuerKey []byte, maxAge time.Duration) (*Verifier, error) {
	if len(issuerKey) != mldsa44.PublicKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(issuerKey))
	}
	pk := &mldsa44.PublicKey{}
	if err := pk.UnmarshalBinary(issuerKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Verifier{pk: pk, maxAge: maxAge, now: time.Now}, nil
}

// Verify implements signing.Verifier.
func (v *Verifier) Verify(_ context.Context, signature string) (*signing.Disclosure, error) {
	encPayload, encSig, ok := strings.Cut(signature, ".")
	if !ok {
		return nil, ErrMalformed
	}
	payload, err := base64.RawURLEncoding.DecodeString(encPayload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}

	if !mldsa44.Verify(v.pk, signedBytes(payload), nil, sig) {
		return nil, ErrBadSig
	}

	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrMalformed, err)
	}
	if v.maxAge > 0 && v.now().Sub(time.Unix(c.IssuedAt, 0)) > v.maxAge {
		return nil, ErrExpired
	}

	return &signing.Disclosure{Statement: c.Statement, Attributes: c.Attributes}, nil
}

func signedBytes(payload []byte) []byte {
	return append([]byte(domain), payload...)
}
