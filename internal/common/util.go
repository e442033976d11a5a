package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewMessageID returns a fresh random 32 character alphanumeric identifier.
func NewMessageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsMessageID reports whether s has the shape of an identifier returned by
// NewMessageID.
func IsMessageID(s string) bool {
	if len(s) != MessageIDLength {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
