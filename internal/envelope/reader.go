package envelope

import (
	"encoding/binary"
	"fmt"

	"github.com/dmitrijs2005/tguard/internal/seal"
)

// Legacy container layout, integers big endian:
//
//	magic (4) | version (2) | metadata length (4) | metadata | ciphertext | tag (32)
//
// and the metadata itself:
//
//	c_key length (2) | c_key | iv (16) | timestamp (8) | id length (1) | id | value length (1) | value
const (
	LegacyVersion = 1
	TagSize       = 32
	LegacyIVSize  = 16

	preambleSize   = len(LegacyMagic) + 2 + 4
	maxMetadataLen = 2 + seal.MaxKeyCipherSize + LegacyIVSize + 8 + 1 + 255 + 1 + 255
)

// State of a MetadataReader.
type State int

const (
	// Hungry means the header is not complete yet; feed more bytes.
	Hungry State = iota
	// Saturated means the header has been parsed.
	Saturated
)

func (s State) String() string {
	if s == Saturated {
		return "saturated"
	}
	return "hungry"
}

// Header is the raw legacy header plus the identity it names.
type Header struct {
	Raw       []byte
	Version   uint16
	Attribute seal.Attribute
	Timestamp uint64
}

// Metadata is the parsed key material of a legacy container.
type Metadata struct {
	KeyCipher []byte
	IV        [LegacyIVSize]byte
	Timestamp uint64
	Attribute seal.Attribute
}

// Result is what MetadataReader.Write reports. Unconsumed, Header and
// Metadata are only set once State is Saturated.
type Result struct {
	State      State
	Unconsumed []byte
	Header     *Header
	Metadata   *Metadata
}

// MetadataReader incrementally parses the header of a legacy container from
// chunks of any size. It is single use and not safe for concurrent use.
type MetadataReader struct {
	arena Arena
	need  int
	done  bool
}

// NewMetadataReader returns a reader in the Hungry state.
func NewMetadataReader() *MetadataReader {
	return &MetadataReader{}
}

// Write feeds the next chunk of the container.
func (r *MetadataReader) Write(chunk []byte) (Result, error) {
	if r.done {
		return Result{}, ErrSaturated
	}
	r.arena.Append(chunk)

	if r.need == 0 {
		pre, ok := r.arena.Peek(preambleSize)
		if !ok {
			return Result{State: Hungry}, nil
		}
		n, err := parsePreamble(pre)
		if err != nil {
			return Result{}, err
		}
		r.need = preambleSize + n
	}

	raw, ok := r.arena.Next(r.need)
	if !ok {
		return Result{State: Hungry}, nil
	}
	raw = append([]byte(nil), raw...)

	meta, err := parseMetadata(raw[preambleSize:])
	if err != nil {
		return Result{}, err
	}

	r.done = true
	return Result{
		State:      Saturated,
		Unconsumed: r.arena.Detach(),
		Header: &Header{
			Raw:       raw,
			Version:   binary.BigEndian.Uint16(raw[4:6]),
			Attribute: meta.Attribute,
			Timestamp: meta.Timestamp,
		},
		Metadata: meta,
	}, nil
}

// Finish is called when the source is exhausted. It fails with
// ErrLegacyTruncated unless the header was completed.
func (r *MetadataReader) Finish() error {
	if !r.done {
		return fmt.Errorf("%w: %d header bytes buffered", ErrLegacyTruncated, r.arena.Len())
	}
	return nil
}

func parsePreamble(p []byte) (int, error) {
	if [4]byte(p[:4]) != LegacyMagic {
		return 0, ErrFormatUnrecognized
	}
	if v := binary.BigEndian.Uint16(p[4:6]); v != LegacyVersion {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	n := binary.BigEndian.Uint32(p[6:10])
	if n > maxMetadataLen {
		return 0, fmt.Errorf("%w: metadata length %d", ErrMalformedHeader, n)
	}
	return int(n), nil
}

func parseMetadata(p []byte) (*Metadata, error) {
	c := cursor{buf: p}

	kcLen := int(binary.BigEndian.Uint16(c.take(2)))
	if kcLen < seal.MinKeyCipherSize || kcLen > seal.MaxKeyCipherSize {
		return nil, fmt.Errorf("%w: c_key length %d", ErrMalformedHeader, kcLen)
	}

	m := &Metadata{}
	m.KeyCipher = append([]byte(nil), c.take(kcLen)...)
	copy(m.IV[:], c.take(LegacyIVSize))
	m.Timestamp = binary.BigEndian.Uint64(c.take(8))
	m.Attribute.Identifier = string(c.take(int(c.u8())))
	m.Attribute.Value = string(c.take(int(c.u8())))

	if c.short {
		return nil, fmt.Errorf("%w: metadata too short", ErrMalformedHeader)
	}
	if len(c.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing metadata bytes", ErrMalformedHeader, len(c.buf))
	}
	return m, nil
}

// cursor reads fixed-size fields; once it runs short every further read
// returns zeros and short stays set.
type cursor struct {
	buf   []byte
	short bool
}

func (c *cursor) take(n int) []byte {
	if c.short || len(c.buf) < n {
		c.short = true
		return make([]byte, n)
	}
	p := c.buf[:n]
	c.buf = c.buf[n:]
	return p
}

func (c *cursor) u8() byte {
	return c.take(1)[0]
}
