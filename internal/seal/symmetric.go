package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/tguard/internal/ibe"
)

// IVSize is the nonce length used for newly sealed messages.
const IVSize = 16

// symmetricKey derives the AES-256 key from an encapsulated session key.
func symmetricKey(k *ibe.SessionKey) [32]byte {
	return sha256.Sum256(k[:])
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoPrimitive, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoPrimitive, err)
	}
	return gcm, nil
}

func encryptGCM(k *ibe.SessionKey, iv, plaintext []byte) ([]byte, error) {
	key := symmetricKey(k)
	gcm, err := newGCM(key[:], len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

func decryptGCM(k *ibe.SessionKey, iv, ciphertext []byte) ([]byte, error) {
	if len(iv) < MinIVSize || len(iv) > MaxIVSize {
		return nil, fmt.Errorf("%w: iv is %d bytes", ErrCryptoPrimitive, len(iv))
	}
	if len(ciphertext) < MinCiphertextSize {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes", ErrCryptoPrimitive, len(ciphertext))
	}

	key := symmetricKey(k)
	gcm, err := newGCM(key[:], len(iv))
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return pt, nil
}
