// Package records implements the flat record serialization the transport
// layer may carry on behalf of higher layers: fixed header fields plus a
// variable payload per record, with the serialized block padded up to the
// next power of two to obscure the exact record sizes.
package records

import (
	"encoding/binary"
	"math/bits"

	"github.com/samber/oops"
)

// TypeUnpadded is the record kind whose serialized form is NOT padded to a
// power of two. The exemption applies only when it is the sole record in the
// block.
const TypeUnpadded uint32 = 0xFFFFFFFF

// recordHeaderSize is the fixed per-record overhead:
// expiration (8) || data length (2) || type (4) || flags (4).
const recordHeaderSize = 8 + 2 + 4 + 4

// MaxDataSize bounds a single record payload (the length field is 16 bits).
const MaxDataSize = 1<<16 - 1

var (
	ErrDataTooLarge = oops.New("record payload exceeds 16-bit length field")
	ErrTruncated    = oops.New("serialized records truncated")
	ErrNoRecords    = oops.New("no records to serialize")
)

// Record is one flat record: an expiration timestamp (µs since epoch), a
// type, flags, and an opaque payload.
type Record struct {
	Expiration uint64
	Type       uint32
	Flags      uint32
	Data       []byte
}

// Size returns the number of bytes Serialize will produce: the sum of all
// record sizes rounded up to the next power of two — except when the block
// consists of exactly one record of the unpadded kind, in which case the
// exact size is returned.
func Size(rs []Record) int {
	raw := 0
	for _, r := range rs {
		raw += recordHeaderSize + len(r.Data)
	}
	if len(rs) == 1 && rs[0].Type == TypeUnpadded {
		return raw
	}
	return nextPow2(raw)
}

// Serialize encodes the records in order, zero-padding up to Size.
func Serialize(rs []Record) ([]byte, error) {
	if len(rs) == 0 {
		return nil, ErrNoRecords
	}
	out := make([]byte, Size(rs))
	off := 0
	for _, r := range rs {
		if len(r.Data) > MaxDataSize {
			return nil, ErrDataTooLarge
		}
		binary.BigEndian.PutUint64(out[off:], r.Expiration)
		binary.BigEndian.PutUint16(out[off+8:], uint16(len(r.Data)))
		binary.BigEndian.PutUint32(out[off+10:], r.Type)
		binary.BigEndian.PutUint32(out[off+14:], r.Flags)
		copy(out[off+recordHeaderSize:], r.Data)
		off += recordHeaderSize + len(r.Data)
	}
	return out, nil
}

// Deserialize decodes count records from data, ignoring trailing padding.
func Deserialize(data []byte, count int) ([]Record, error) {
	rs := make([]Record, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		if len(data)-off < recordHeaderSize {
			return nil, ErrTruncated
		}
		r := Record{
			Expiration: binary.BigEndian.Uint64(data[off:]),
			Type:       binary.BigEndian.Uint32(data[off+10:]),
			Flags:      binary.BigEndian.Uint32(data[off+14:]),
		}
		dataLen := int(binary.BigEndian.Uint16(data[off+8:]))
		off += recordHeaderSize
		if len(data)-off < dataLen {
			return nil, ErrTruncated
		}
		r.Data = append([]byte(nil), data[off:off+dataLen]...)
		off += dataLen
		rs = append(rs, r)
	}
	return rs, nil
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
