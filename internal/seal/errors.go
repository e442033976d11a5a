package seal

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyDecode is returned when a public key, user secret key or key
	// ciphertext does not decode to the primitive's fixed-size blob.
	ErrKeyDecode = errors.New("key decode error")

	// ErrCryptoPrimitive is returned when the symmetric layer rejects its
	// input: malformed IV or ciphertext, or a failed authentication check.
	ErrCryptoPrimitive = errors.New("crypto primitive failure")

	// ErrAuthentication is the ErrCryptoPrimitive variant for well-formed
	// input that fails the authentication check: a key for another identity
	// or timestamp, or a tampered ciphertext.
	ErrAuthentication = fmt.Errorf("%w: authentication failed", ErrCryptoPrimitive)

	// ErrEncodingOverflow is returned when an attribute identifier or value
	// does not fit a one-byte length prefix.
	ErrEncodingOverflow = errors.New("encoding overflow")

	// ErrInvalidMessage is returned by SealedMessage.Validate.
	ErrInvalidMessage = errors.New("invalid sealed message")

	// ErrNoRecipients is returned when Seal is called with nothing to seal for.
	ErrNoRecipients = errors.New("no recipients")
)
