// Package signing binds an attribute-based signature to the plaintext MIME
// blob of a message and verifies that binding after unsealing.
//
// The cryptography is delegated to a Signer and a Verifier; this package
// owns the statement that is signed and the checks made on what the
// verifier discloses.
package signing

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/dmitrijs2005/tguard/internal/seal"
)

// StatementPrefix precedes the hex digest in every signed statement.
const StatementPrefix = "Tguard bericht met hash "

// MaxSignatureLength is the longest signature a submission may carry.
const MaxSignatureLength = 4096

var (
	// ErrSignatureMismatch is the root of every verification failure.
	ErrSignatureMismatch = errors.New("signature mismatch")

	ErrStatementMismatch = fmt.Errorf("%w: statement does not match plaintext", ErrSignatureMismatch)
	ErrSenderMismatch    = fmt.Errorf("%w: disclosed e-mail does not match sender", ErrSignatureMismatch)
	ErrInvalidProof      = fmt.Errorf("%w: proof rejected", ErrSignatureMismatch)
)

// Disclosure is what a verifier reports for a valid signature.
type Disclosure struct {
	Statement  string            `json:"statement"`
	Attributes map[string]string `json:"attributes"`
}

// Record is a signature together with the statement it was made over.
type Record struct {
	Signature string
	Statement string
}

// Signer produces an opaque signature over statement that discloses attrs.
type Signer interface {
	Sign(ctx context.Context, statement string, attrs []seal.Attribute) (string, error)
}

// Verifier checks an opaque signature and reports what it discloses.
type Verifier interface {
	Verify(ctx context.Context, signature string) (*Disclosure, error)
}

// Statement returns the text that binds a signature to blob.
func Statement(blob []byte) string {
	sum := sha3.Sum512(blob)
	return StatementPrefix + hex.EncodeToString(sum[:])
}

// Binder ties a Signer and a Verifier to the statement format. Either may be
// nil when only one direction is needed.
type Binder struct {
	Signer   Signer
	Verifier Verifier
}

// Sign signs the statement for blob.
func (b *Binder) Sign(ctx context.Context, blob []byte, attrs []seal.Attribute) (*Record, error) {
	if b.Signer == nil {
		return nil, errors.New("no signer configured")
	}
	st := Statement(blob)
	sig, err := b.Signer.Sign(ctx, st, attrs)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if len(sig) > MaxSignatureLength {
		return nil, fmt.Errorf("signature is %d bytes, limit %d", len(sig), MaxSignatureLength)
	}
	return &Record{Signature: sig, Statement: st}, nil
}

// CheckSignature verifies that signature is valid, was made over the
// statement for blob and discloses claimedFrom as the sender's e-mail.
// The disclosure is returned on success.
func (b *Binder) CheckSignature(ctx context.Context, signature string, blob []byte, claimedFrom string) (*Disclosure, error) {
	if b.Verifier == nil {
		return nil, fmt.Errorf("%w: no verifier configured", ErrSignatureMismatch)
	}

	d, err := b.Verifier.Verify(ctx, signature)
	if err != nil {
		if errors.Is(err, ErrSignatureMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: verifier: %v", ErrSignatureMismatch, err)
	}
	if d == nil {
		return nil, ErrInvalidProof
	}

	if d.Statement != Statement(blob) {
		return nil, ErrStatementMismatch
	}

	from, ok := d.Attributes[seal.EmailAttribute]
	if !ok || claimedFrom == "" || from != claimedFrom {
		return nil, ErrSenderMismatch
	}

	return d, nil
}

// Verify is CheckSignature reduced to a yes or no. Any failure is false.
func (b *Binder) Verify(ctx context.Context, signature string, blob []byte, claimedFrom string) bool {
	_, err := b.CheckSignature(ctx, signature, blob, claimedFrom)
	return err == nil
}
