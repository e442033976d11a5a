package seal

import (
	"encoding/base64"
	"fmt"

	"github.com/dmitrijs2005/tguard/internal/ibe"
)

// Unseal decrypts sm with the base64 encoded user secret key.
//
// The IBE step cannot tell a wrong key from a right one; with a key for
// another identity the failure shows up as ErrAuthentication when the
// AEAD rejects the ciphertext. Malformed input fails with ErrKeyDecode or
// a plain ErrCryptoPrimitive before that check.
func Unseal(sm *SealedMessage, userSecretKey string) ([]byte, error) {
	usk, err := UserSecretKeyFromBase64(userSecretKey)
	if err != nil {
		return nil, err
	}
	return UnsealWithKey(sm, usk)
}

// UnsealWithKey is Unseal with an already decoded user secret key.
func UnsealWithKey(sm *SealedMessage, usk *ibe.UserSecretKey) ([]byte, error) {
	rawKeyCipher, err := base64.StdEncoding.DecodeString(sm.KeyCipher)
	if err != nil {
		return nil, fmt.Errorf("%w: c_key: %v", ErrKeyDecode, err)
	}
	keyCipher, err := ibe.UnmarshalKeyCiphertext(rawKeyCipher)
	if err != nil {
		return nil, fmt.Errorf("%w: c_key: %v", ErrKeyDecode, err)
	}

	sessionKey := ibe.Decrypt(usk, keyCipher)

	iv, err := base64.StdEncoding.DecodeString(sm.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrCryptoPrimitive, err)
	}
	ct, err := base64.StdEncoding.DecodeString(sm.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ct: %v", ErrCryptoPrimitive, err)
	}

	return decryptGCM(sessionKey, iv, ct)
}
