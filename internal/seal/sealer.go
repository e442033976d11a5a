package seal

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/tguard/internal/ibe"
)

// scalarSeedSize is the randomness pre-drawn for one IBE encapsulation.
const scalarSeedSize = 64

// PublicKeyFromBase64 decodes the key service public parameters.
func PublicKeyFromBase64(s string) (*ibe.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrKeyDecode, err)
	}
	pk, err := ibe.UnmarshalPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrKeyDecode, err)
	}
	return pk, nil
}

// UserSecretKeyFromBase64 decodes a user secret key issued by the key service.
func UserSecretKeyFromBase64(s string) (*ibe.UserSecretKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: user secret key: %v", ErrKeyDecode, err)
	}
	usk, err := ibe.UnmarshalUserSecretKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: user secret key: %v", ErrKeyDecode, err)
	}
	return usk, nil
}

// Seal encrypts plaintext once per recipient under the base64 encoded
// public key. Every envelope gets its own session key and IV.
//
// Randomness is taken from rng in recipient order before the per-recipient
// work fans out, so a deterministic rng yields deterministic envelopes.
func Seal(publicKey string, recipients []Recipient, plaintext []byte, timestamp uint64, rng io.Reader) ([]RecipientMessage, error) {
	pk, err := PublicKeyFromBase64(publicKey)
	if err != nil {
		return nil, err
	}
	return SealWithKey(pk, recipients, plaintext, timestamp, rng)
}

// SealWithKey is Seal with an already decoded public key.
func SealWithKey(pk *ibe.PublicKey, recipients []Recipient, plaintext []byte, timestamp uint64, rng io.Reader) ([]RecipientMessage, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	ids := make([][]byte, len(recipients))
	for i, r := range recipients {
		if len(r.Attributes) == 0 {
			return nil, fmt.Errorf("recipient %s: %w: no attributes", r.To, ErrInvalidMessage)
		}
		id, err := DeriveIdentity(r.Attributes[0], timestamp)
		if err != nil {
			return nil, fmt.Errorf("recipient %s: %w", r.To, err)
		}
		ids[i] = id
	}

	// Rejection sampling in ibe may ask for more than the seed; those extra
	// reads fall through to the shared reader.
	shared := &lockedReader{r: rng}
	ivs := make([][]byte, len(recipients))
	seeds := make([]io.Reader, len(recipients))
	for i := range recipients {
		buf := make([]byte, IVSize+scalarSeedSize)
		if _, err := io.ReadFull(shared, buf); err != nil {
			return nil, fmt.Errorf("read randomness: %w", err)
		}
		ivs[i] = buf[:IVSize]
		seeds[i] = io.MultiReader(bytes.NewReader(buf[IVSize:]), shared)
	}

	out := make([]RecipientMessage, len(recipients))
	var g errgroup.Group
	for i, r := range recipients {
		g.Go(func() error {
			sm, err := sealOne(pk, ids[i], r.Attributes, plaintext, timestamp, ivs[i], seeds[i])
			if err != nil {
				return fmt.Errorf("recipient %s: %w", r.To, err)
			}
			out[i] = RecipientMessage{To: r.To, Sealed: sm}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

func sealOne(pk *ibe.PublicKey, id []byte, attrs []Attribute, plaintext []byte, timestamp uint64, iv []byte, rng io.Reader) (*SealedMessage, error) {
	keyCipher, sessionKey, err := ibe.Encrypt(pk, id, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoPrimitive, err)
	}

	ct, err := encryptGCM(sessionKey, iv, plaintext)
	if err != nil {
		return nil, err
	}

	return &SealedMessage{
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		KeyCipher:  base64.StdEncoding.EncodeToString(keyCipher.Marshal()),
		Timestamp:  timestamp,
		Attributes: append([]Attribute(nil), attrs...),
	}, nil
}

type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}
