// Package envelope encodes and parses the two wire containers a sealed
// message is stored in: the JSON SealedMessage and the legacy binary
// container, which is parsed incrementally by MetadataReader.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/tguard/internal/seal"
)

// Format identifies a wire container.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// LegacyMagic opens every legacy container.
var LegacyMagic = [4]byte{0x14, 0x8a, 0x8e, 0xa7}

var jsonPrefix = []byte(`{"`)

// Sniff selects the wire format from the leading bytes of blob.
func Sniff(blob []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(blob, jsonPrefix):
		return FormatJSON, nil
	case bytes.HasPrefix(blob, LegacyMagic[:]):
		return FormatLegacy, nil
	default:
		return FormatUnknown, ErrFormatUnrecognized
	}
}

// EncodeJSON serializes sm as a JSON envelope.
func EncodeJSON(sm *seal.SealedMessage) ([]byte, error) {
	if err := sm.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(sm)
}

// DecodeJSON parses and validates a JSON envelope.
func DecodeJSON(blob []byte) (*seal.SealedMessage, error) {
	var sm seal.SealedMessage
	if err := json.Unmarshal(blob, &sm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if err := sm.Validate(); err != nil {
		return nil, err
	}
	return &sm, nil
}
