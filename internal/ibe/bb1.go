// Package ibe implements the identity-based key encapsulation used to seal
// per-message session keys to attribute identities.
//
// The scheme is Boneh-Boyen BB1 ("Efficient Selective Identity-Based
// Encryption Without Random Oracles", Section 4.3) used as a KEM over the
// bn256 pairing. The paper uses multiplicative groups while bn256 exposes
// additive ones, so g^i in the comments corresponds to ScalarBaseMult(i).
//
// Four operations are provided:
//
//   - Setup creates the public parameters and the master key.
//   - Extract derives the user secret key for an identity (key service only).
//   - Encrypt encapsulates a fresh session key for an identity.
//   - Decrypt recovers the session key with a user secret key.
//
// Decrypt never reports failure: a user secret key for another identity
// yields an unrelated session key. Callers detect that downstream.
package ibe

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/bn256"
)

var (
	// ErrInvalidSize is returned when a marshaled key or ciphertext has the wrong length.
	ErrInvalidSize = errors.New("ibe: invalid size")

	// ErrInvalidPoint is returned when marshaled bytes are not a valid group element.
	ErrInvalidPoint = errors.New("ibe: invalid group element")
)

// PublicKey holds the public parameters used to encapsulate keys.
type PublicKey struct {
	g1, h bn256.G1
	v     *bn256.GT
}

// MasterKey is the key service secret used to extract user secret keys.
type MasterKey struct {
	pk *PublicKey

	g0Hat, g1Hat, hHat bn256.G2
}

// UserSecretKey is the secret key for exactly one identity.
type UserSecretKey struct {
	d0, d1 bn256.G2
}

// KeyCiphertext is the encapsulation of a session key.
type KeyCiphertext struct {
	b, c1 bn256.G1
}

// SessionKey is the encapsulated secret. Symmetric keys are derived from it
// by hashing, never used directly.
type SessionKey [SessionKeySize]byte

// Setup generates fresh public parameters and the matching master key.
func Setup(rng io.Reader) (*PublicKey, *MasterKey, error) {
	alpha, err := randomScalar(rng)
	if err != nil {
		return nil, nil, err
	}
	beta, err := randomScalar(rng)
	if err != nil {
		return nil, nil, err
	}
	delta, err := randomScalar(rng)
	if err != nil {
		return nil, nil, err
	}

	pk := &PublicKey{}
	mk := &MasterKey{pk: pk}

	pk.g1.ScalarBaseMult(alpha)
	pk.h.ScalarBaseMult(delta)
	mk.g1Hat.ScalarBaseMult(alpha)
	mk.hHat.ScalarBaseMult(delta)

	// g0Hat = gHat^(alpha*beta)
	ab := new(big.Int).Mul(alpha, beta)
	mk.g0Hat.ScalarBaseMult(ab.Mod(ab, bn256.Order))

	g := new(bn256.G1).ScalarBaseMult(big.NewInt(1))
	pk.v = bn256.Pair(g, &mk.g0Hat)

	return pk, mk, nil
}

// PublicKey returns the public parameters belonging to mk.
func (mk *MasterKey) PublicKey() *PublicKey {
	return mk.pk
}

// Extract derives the user secret key for id.
func Extract(mk *MasterKey, id []byte, rng io.Reader) (*UserSecretKey, error) {
	r, err := randomScalar(rng)
	if err != nil {
		return nil, err
	}

	usk := &UserSecretKey{}
	// d0 = g0Hat * (g1Hat^i * hHat)^r
	d0 := new(bn256.G2).ScalarMult(&mk.g1Hat, hashIdentity(id))
	d0.Add(d0, &mk.hHat)
	d0.ScalarMult(d0, r)
	usk.d0.Add(d0, &mk.g0Hat)
	// d1 = gHat^r
	usk.d1.ScalarBaseMult(r)

	return usk, nil
}

// Encrypt encapsulates a fresh session key for id. A new scalar is drawn
// from rng on every call.
func Encrypt(pk *PublicKey, id []byte, rng io.Reader) (*KeyCiphertext, *SessionKey, error) {
	s, err := randomScalar(rng)
	if err != nil {
		return nil, nil, err
	}

	c := &KeyCiphertext{}
	// B = g^s
	c.b.ScalarBaseMult(s)
	// C1 = (g1^H(id) * h)^s
	c.c1.ScalarMult(&pk.g1, hashIdentity(id))
	c.c1.Add(&c.c1, &pk.h)
	c.c1.ScalarMult(&c.c1, s)

	// K = v^s
	vs := new(bn256.GT).ScalarMult(pk.v, s)

	k, err := sessionKeyFromGT(vs)
	if err != nil {
		return nil, nil, err
	}
	return c, k, nil
}

// Decrypt recovers the session key K = e(B, d0) / e(C1, d1).
func Decrypt(usk *UserSecretKey, c *KeyCiphertext) *SessionKey {
	num := bn256.Pair(&c.b, &usk.d0)
	den := bn256.Pair(&c.c1, &usk.d1)
	num.Add(num, new(bn256.GT).Neg(den))

	var k SessionKey
	copy(k[:], num.Marshal())
	return &k
}

func sessionKeyFromGT(e *bn256.GT) (*SessionKey, error) {
	raw := e.Marshal()
	if len(raw) != SessionKeySize {
		return nil, fmt.Errorf("bn256.GT.Marshal returned %d bytes, expected %d", len(raw), SessionKeySize)
	}
	var k SessionKey
	copy(k[:], raw)
	return &k, nil
}

// randomScalar returns a uniformly distributed integer in [1, Order).
// 64 bytes are reduced so the modulo bias is negligible.
func randomScalar(rng io.Reader) (*big.Int, error) {
	var buf [64]byte
	for {
		if _, err := io.ReadFull(rng, buf[:]); err != nil {
			return nil, fmt.Errorf("ibe: read randomness: %w", err)
		}
		k := new(big.Int).SetBytes(buf[:])
		k.Mod(k, bn256.Order)
		if k.Sign() > 0 {
			return k, nil
		}
	}
}

func hashIdentity(id []byte) *big.Int {
	h := sha256.Sum256(id)
	k := new(big.Int).SetBytes(h[:])
	return k.Mod(k, bn256.Order)
}
