package seal

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DeriveIdentity builds the byte string a message is sealed to:
//
//	timestamp (8 bytes, big endian) || len(identifier) || identifier || len(value) || value
//
// Each length is a single byte. The encoding is pure; sealer and unsealer
// compute it independently and must agree bit for bit.
func DeriveIdentity(attr Attribute, timestamp uint64) ([]byte, error) {
	id := []byte(attr.Identifier)
	val := []byte(attr.Value)

	if len(id) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: identifier is %d bytes", ErrEncodingOverflow, len(id))
	}
	if len(val) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: value is %d bytes", ErrEncodingOverflow, len(val))
	}

	buf := make([]byte, 0, 8+1+len(id)+1+len(val))
	buf = binary.BigEndian.AppendUint64(buf, timestamp)
	buf = append(buf, byte(len(id)))
	buf = append(buf, id...)
	buf = append(buf, byte(len(val)))
	buf = append(buf, val...)

	return buf, nil
}
