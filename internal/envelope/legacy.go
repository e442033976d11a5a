package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"

	"github.com/dmitrijs2005/tguard/internal/ibe"
	"github.com/dmitrijs2005/tguard/internal/seal"
)

// DefaultChunkSize is the read size ReadLegacy uses when given none.
const DefaultChunkSize = 32

// KeySet holds the symmetric keys of a legacy container.
type KeySet struct {
	AESKey [32]byte
	MACKey [32]byte
}

// DeriveKeys recovers the session key with usk and splits SHA3-512 of it
// into the body and MAC keys.
func (m *Metadata) DeriveKeys(usk *ibe.UserSecretKey) (KeySet, error) {
	kc, err := ibe.UnmarshalKeyCiphertext(m.KeyCipher)
	if err != nil {
		return KeySet{}, fmt.Errorf("%w: c_key: %v", seal.ErrKeyDecode, err)
	}
	return deriveKeySet(ibe.Decrypt(usk, kc)), nil
}

func deriveKeySet(k *ibe.SessionKey) KeySet {
	sum := sha3.Sum512(k[:])
	var ks KeySet
	copy(ks.AESKey[:], sum[:32])
	copy(ks.MACKey[:], sum[32:])
	return ks
}

func tag(macKey []byte, ciphertext []byte) []byte {
	mac := hmac.New(sha3.New256, macKey)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func ctr(key []byte, iv []byte, dst, src []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", seal.ErrCryptoPrimitive, err)
	}
	cipher.NewCTR(block, iv).XORKeyStream(dst, src)
	return nil
}

// SealLegacy writes plaintext as a legacy container sealed to attr at timestamp.
func SealLegacy(pk *ibe.PublicKey, attr seal.Attribute, timestamp uint64, plaintext []byte, rng io.Reader) ([]byte, error) {
	id, err := seal.DeriveIdentity(attr, timestamp)
	if err != nil {
		return nil, err
	}

	var iv [LegacyIVSize]byte
	if _, err := io.ReadFull(rng, iv[:]); err != nil {
		return nil, fmt.Errorf("read randomness: %w", err)
	}
	kc, sk, err := ibe.Encrypt(pk, id, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", seal.ErrCryptoPrimitive, err)
	}
	keys := deriveKeySet(sk)

	kcRaw := kc.Marshal()
	meta := make([]byte, 0, 2+len(kcRaw)+LegacyIVSize+8+2+len(attr.Identifier)+len(attr.Value))
	meta = binary.BigEndian.AppendUint16(meta, uint16(len(kcRaw)))
	meta = append(meta, kcRaw...)
	meta = append(meta, iv[:]...)
	meta = binary.BigEndian.AppendUint64(meta, timestamp)
	meta = append(meta, byte(len(attr.Identifier)))
	meta = append(meta, attr.Identifier...)
	meta = append(meta, byte(len(attr.Value)))
	meta = append(meta, attr.Value...)

	out := make([]byte, 0, preambleSize+len(meta)+len(plaintext)+TagSize)
	out = append(out, LegacyMagic[:]...)
	out = binary.BigEndian.AppendUint16(out, uint16(LegacyVersion))
	out = binary.BigEndian.AppendUint32(out, uint32(len(meta)))
	out = append(out, meta...)

	ct := make([]byte, len(plaintext))
	if err := ctr(keys.AESKey[:], iv[:], ct, plaintext); err != nil {
		return nil, err
	}
	out = append(out, ct...)
	out = append(out, tag(keys.MACKey[:], ct)...)

	return out, nil
}

// OpenBody checks the trailing tag of body (ciphertext followed by the tag)
// and only then decrypts it.
func OpenBody(meta *Metadata, keys KeySet, body []byte) ([]byte, error) {
	if len(body) < TagSize {
		return nil, fmt.Errorf("%w: body is %d bytes", ErrLegacyTruncated, len(body))
	}
	ct, want := body[:len(body)-TagSize], body[len(body)-TagSize:]

	if !hmac.Equal(tag(keys.MACKey[:], ct), want) {
		return nil, ErrTagMismatch
	}

	pt := make([]byte, len(ct))
	if err := ctr(keys.AESKey[:], meta.IV[:], pt, ct); err != nil {
		return nil, err
	}
	return pt, nil
}

// ParseLegacy parses the header of a complete legacy container held in
// memory. The returned Result carries the body in Unconsumed.
func ParseLegacy(blob []byte) (Result, error) {
	mr := NewMetadataReader()
	res, err := mr.Write(blob)
	if err != nil {
		return Result{}, err
	}
	if res.State == Hungry {
		return Result{}, mr.Finish()
	}
	return res, nil
}

// OpenLegacy decrypts a complete legacy container with usk.
func OpenLegacy(blob []byte, usk *ibe.UserSecretKey) ([]byte, error) {
	res, err := ParseLegacy(blob)
	if err != nil {
		return nil, err
	}
	keys, err := res.Metadata.DeriveKeys(usk)
	if err != nil {
		return nil, err
	}
	return OpenBody(res.Metadata, keys, res.Unconsumed)
}

// ReadLegacy drives a MetadataReader from r in chunks of the given size and
// then reads the rest of the stream. The returned body is everything after
// the header: ciphertext followed by the tag. Result.Unconsumed is the part
// of the body that arrived together with the header.
func ReadLegacy(r io.Reader, chunk int) (Result, []byte, error) {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	mr := NewMetadataReader()
	buf := make([]byte, chunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			res, werr := mr.Write(buf[:n])
			if werr != nil {
				return Result{}, nil, werr
			}
			if res.State == Saturated {
				rest, rerr := io.ReadAll(r)
				if rerr != nil {
					return Result{}, nil, rerr
				}
				body := make([]byte, 0, len(res.Unconsumed)+len(rest))
				body = append(append(body, res.Unconsumed...), rest...)
				return res, body, nil
			}
		}
		if errors.Is(err, io.EOF) {
			return Result{}, nil, mr.Finish()
		}
		if err != nil {
			return Result{}, nil, err
		}
	}
}
