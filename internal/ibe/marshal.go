package ibe

import (
	"fmt"

	"golang.org/x/crypto/bn256"
)

const (
	g1Size = 64
	g2Size = 128
	gtSize = 384

	// PublicKeySize is the length of a marshaled PublicKey.
	PublicKeySize = 2*g1Size + gtSize
	// MasterKeySize is the length of a marshaled MasterKey, public part included.
	MasterKeySize = PublicKeySize + 3*g2Size
	// UserSecretKeySize is the length of a marshaled UserSecretKey.
	UserSecretKeySize = 2 * g2Size
	// CiphertextSize is the length of a marshaled KeyCiphertext.
	CiphertextSize = 2 * g1Size
	// SessionKeySize is the length of a SessionKey.
	SessionKeySize = gtSize
)

// Marshal encodes pk as g1 || h || v.
func (pk *PublicKey) Marshal() []byte {
	out := make([]byte, 0, PublicKeySize)
	out = append(out, pk.g1.Marshal()...)
	out = append(out, pk.h.Marshal()...)
	out = append(out, pk.v.Marshal()...)
	return out
}

// UnmarshalPublicKey parses the output of PublicKey.Marshal.
func UnmarshalPublicKey(data []byte) (*PublicKey, error) {
	if len(data) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key is %d bytes, want %d", ErrInvalidSize, len(data), PublicKeySize)
	}
	pk := &PublicKey{v: new(bn256.GT)}
	if _, ok := pk.g1.Unmarshal(data[:g1Size]); !ok {
		return nil, fmt.Errorf("%w: g1", ErrInvalidPoint)
	}
	if _, ok := pk.h.Unmarshal(data[g1Size : 2*g1Size]); !ok {
		return nil, fmt.Errorf("%w: h", ErrInvalidPoint)
	}
	if _, ok := pk.v.Unmarshal(data[2*g1Size:]); !ok {
		return nil, fmt.Errorf("%w: v", ErrInvalidPoint)
	}
	return pk, nil
}

// Marshal encodes mk as its public key followed by g0Hat || g1Hat || hHat.
func (mk *MasterKey) Marshal() []byte {
	out := make([]byte, 0, MasterKeySize)
	out = append(out, mk.pk.Marshal()...)
	out = append(out, mk.g0Hat.Marshal()...)
	out = append(out, mk.g1Hat.Marshal()...)
	out = append(out, mk.hHat.Marshal()...)
	return out
}

// UnmarshalMasterKey parses the output of MasterKey.Marshal.
func UnmarshalMasterKey(data []byte) (*MasterKey, error) {
	if len(data) != MasterKeySize {
		return nil, fmt.Errorf("%w: master key is %d bytes, want %d", ErrInvalidSize, len(data), MasterKeySize)
	}
	pk, err := UnmarshalPublicKey(data[:PublicKeySize])
	if err != nil {
		return nil, err
	}
	mk := &MasterKey{pk: pk}
	rest := data[PublicKeySize:]
	for i, dst := range []*bn256.G2{&mk.g0Hat, &mk.g1Hat, &mk.hHat} {
		if _, ok := dst.Unmarshal(rest[i*g2Size : (i+1)*g2Size]); !ok {
			return nil, fmt.Errorf("%w: master key element %d", ErrInvalidPoint, i)
		}
	}
	return mk, nil
}

// Marshal encodes usk as d0 || d1.
func (usk *UserSecretKey) Marshal() []byte {
	out := make([]byte, 0, UserSecretKeySize)
	out = append(out, usk.d0.Marshal()...)
	out = append(out, usk.d1.Marshal()...)
	return out
}

// UnmarshalUserSecretKey parses the output of UserSecretKey.Marshal.
func UnmarshalUserSecretKey(data []byte) (*UserSecretKey, error) {
	if len(data) != UserSecretKeySize {
		return nil, fmt.Errorf("%w: user secret key is %d bytes, want %d", ErrInvalidSize, len(data), UserSecretKeySize)
	}
	usk := &UserSecretKey{}
	if _, ok := usk.d0.Unmarshal(data[:g2Size]); !ok {
		return nil, fmt.Errorf("%w: d0", ErrInvalidPoint)
	}
	if _, ok := usk.d1.Unmarshal(data[g2Size:]); !ok {
		return nil, fmt.Errorf("%w: d1", ErrInvalidPoint)
	}
	return usk, nil
}

// Marshal encodes c as B || C1.
func (c *KeyCiphertext) Marshal() []byte {
	out := make([]byte, 0, CiphertextSize)
	out = append(out, c.b.Marshal()...)
	out = append(out, c.c1.Marshal()...)
	return out
}

// UnmarshalKeyCiphertext parses the output of KeyCiphertext.Marshal.
func UnmarshalKeyCiphertext(data []byte) (*KeyCiphertext, error) {
	if len(data) != CiphertextSize {
		return nil, fmt.Errorf("%w: key ciphertext is %d bytes, want %d", ErrInvalidSize, len(data), CiphertextSize)
	}
	c := &KeyCiphertext{}
	if _, ok := c.b.Unmarshal(data[:g1Size]); !ok {
		return nil, fmt.Errorf("%w: B", ErrInvalidPoint)
	}
	if _, ok := c.c1.Unmarshal(data[g1Size:]); !ok {
		return nil, fmt.Errorf("%w: C1", ErrInvalidPoint)
	}
	return c, nil
}
