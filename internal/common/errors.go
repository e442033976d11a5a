// Package common defines sentinel errors shared by the tguard server layers.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Submission validation errors.
	ErrorValidation       = errors.New("validation error")
	ErrorInvalidAttribute = errors.New("attribute used for encryption is not allowed")
	ErrorTooBig           = errors.New("encrypted data too large")
	ErrorRateLimited      = errors.New("too many submissions")

	// Download token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
