package seal

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// Size bounds on the decoded envelope fields.
const (
	MinIVSize         = 16
	MaxIVSize         = 32
	MinCiphertextSize = 16
	MinKeyCipherSize  = 16
	MaxKeyCipherSize  = 1024
)

// SealedMessage is the envelope addressed to one recipient. Binary fields
// are standard base64 with padding.
type SealedMessage struct {
	IV         string      `json:"iv"`
	Ciphertext string      `json:"ct"`
	KeyCipher  string      `json:"c_key"`
	Timestamp  uint64      `json:"timestamp"`
	Attributes []Attribute `json:"attributes"`
}

// RecipientMessage pairs a recipient address with the envelope sealed for it.
type RecipientMessage struct {
	To     string         `json:"to"`
	Sealed *SealedMessage `json:"sealed"`
}

// Validate checks the structural bounds of the envelope without touching
// any key material.
func (m *SealedMessage) Validate() error {
	iv, err := decodeField("iv", m.IV)
	if err != nil {
		return err
	}
	if len(iv) < MinIVSize || len(iv) > MaxIVSize {
		return fmt.Errorf("%w: iv is %d bytes", ErrInvalidMessage, len(iv))
	}

	ct, err := decodeField("ct", m.Ciphertext)
	if err != nil {
		return err
	}
	if len(ct) < MinCiphertextSize {
		return fmt.Errorf("%w: ct is %d bytes", ErrInvalidMessage, len(ct))
	}

	ck, err := decodeField("c_key", m.KeyCipher)
	if err != nil {
		return err
	}
	if len(ck) < MinKeyCipherSize || len(ck) > MaxKeyCipherSize {
		return fmt.Errorf("%w: c_key is %d bytes", ErrInvalidMessage, len(ck))
	}

	if len(m.Attributes) == 0 {
		return fmt.Errorf("%w: no attributes", ErrInvalidMessage)
	}
	for _, a := range m.Attributes {
		if a.Identifier == "" {
			return fmt.Errorf("%w: empty attribute identifier", ErrInvalidMessage)
		}
		if utf8.RuneCountInString(a.Value) > MaxAttributeValueLength {
			return fmt.Errorf("%w: attribute %s value too long", ErrInvalidMessage, a.Identifier)
		}
	}

	return nil
}

func decodeField(name, s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not base64: %v", ErrInvalidMessage, name, err)
	}
	return b, nil
}
