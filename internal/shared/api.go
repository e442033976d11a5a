// Package shared holds the JSON types exchanged between the tguard client
// and the backend, and small helpers both sides use.
package shared

import (
	"errors"
	"fmt"
	"net/mail"
	"unicode/utf8"

	"github.com/dmitrijs2005/tguard/internal/seal"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

// MaxSubjectLength is the maximum subject length in characters.
const MaxSubjectLength = 512

// ErrInvalidSubmission wraps every submission validation failure.
var ErrInvalidSubmission = errors.New("invalid submission")

// Submission is the body of POST /api.
type Submission struct {
	From              string                  `json:"from"`
	Subject           string                  `json:"subject"`
	RecipientMessages []seal.RecipientMessage `json:"recipient_messages"`
	Signature         *string                 `json:"signature,omitempty"`
}

// SubmitResult lists the message IDs created for a submission, in
// recipient order.
type SubmitResult struct {
	IDs []string `json:"ids"`
}

// Download is the body returned by GET /api/download/{id}.
type Download struct {
	ID        string  `json:"id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Subject   string  `json:"subject"`
	Signature *string `json:"signature,omitempty"`
	// Content is a URL from which the envelope can be fetched.
	Content string `json:"content"`
}

// Validate checks the structural rules of a submission. It does not look at
// server policy such as allowed attributes or size limits.
func (s *Submission) Validate() error {
	if !IsEmail(s.From) {
		return fmt.Errorf("%w: from %q is not an e-mail address", ErrInvalidSubmission, s.From)
	}
	if n := utf8.RuneCountInString(s.Subject); n < 1 || n > MaxSubjectLength {
		return fmt.Errorf("%w: subject must be 1 to %d characters", ErrInvalidSubmission, MaxSubjectLength)
	}
	if s.Signature != nil && len(*s.Signature) > signing.MaxSignatureLength {
		return fmt.Errorf("%w: signature exceeds %d characters", ErrInvalidSubmission, signing.MaxSignatureLength)
	}
	if len(s.RecipientMessages) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidSubmission)
	}
	for i, rm := range s.RecipientMessages {
		if !IsEmail(rm.To) {
			return fmt.Errorf("%w: recipient %d: %q is not an e-mail address", ErrInvalidSubmission, i, rm.To)
		}
		if rm.Sealed == nil {
			return fmt.Errorf("%w: recipient %d: missing sealed message", ErrInvalidSubmission, i)
		}
		if err := rm.Sealed.Validate(); err != nil {
			return fmt.Errorf("%w: recipient %d: %w", ErrInvalidSubmission, i, err)
		}
	}
	return nil
}

// IsEmail reports whether s is a bare e-mail address.
func IsEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Name == "" && a.Address == s
}
