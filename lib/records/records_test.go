package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeRoundsToPowerOfTwo(t *testing.T) {
	// One header (18 bytes) plus 10 bytes of data is 28, padded to 32.
	rs := []Record{{Type: 1, Data: make([]byte, 10)}}
	assert.Equal(t, 32, Size(rs))

	// Exactly a power of two stays put.
	rs = []Record{{Type: 1, Data: make([]byte, 32-recordHeaderSize)}}
	assert.Equal(t, 32, Size(rs))

	// One byte over doubles.
	rs = []Record{{Type: 1, Data: make([]byte, 32-recordHeaderSize+1)}}
	assert.Equal(t, 64, Size(rs))
}

func TestSizeUnpaddedException(t *testing.T) {
	rs := []Record{{Type: TypeUnpadded, Data: make([]byte, 10)}}
	assert.Equal(t, recordHeaderSize+10, Size(rs))

	// The exemption only holds for a sole record.
	rs = append(rs, Record{Type: TypeUnpadded, Data: make([]byte, 10)})
	assert.Equal(t, 64, Size(rs))
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	rs := []Record{
		{Expiration: 1234567890123456, Type: 7, Flags: 3, Data: []byte("first")},
		{Expiration: 42, Type: 9, Flags: 0, Data: []byte("second, longer payload")},
		{Expiration: 0, Type: 1, Flags: 0xFFFFFFFF, Data: nil},
	}

	blob, err := Serialize(rs)
	require.NoError(t, err)
	assert.Len(t, blob, Size(rs))

	got, err := Deserialize(blob, len(rs))
	require.NoError(t, err)
	require.Len(t, got, len(rs))

	for i := range rs {
		assert.Equal(t, rs[i].Expiration, got[i].Expiration, "record %d", i)
		assert.Equal(t, rs[i].Type, got[i].Type, "record %d", i)
		assert.Equal(t, rs[i].Flags, got[i].Flags, "record %d", i)
		if len(rs[i].Data) == 0 {
			assert.Empty(t, got[i].Data, "record %d", i)
		} else {
			assert.Equal(t, rs[i].Data, got[i].Data, "record %d", i)
		}
	}
}

func TestSerializePaddingIsZero(t *testing.T) {
	rs := []Record{{Type: 1, Data: []byte("x")}}
	blob, err := Serialize(rs)
	require.NoError(t, err)

	for _, b := range blob[recordHeaderSize+1:] {
		assert.Zero(t, b)
	}
}

func TestSerializeRejectsEmpty(t *testing.T) {
	_, err := Serialize(nil)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestSerializeRejectsOversizedData(t *testing.T) {
	_, err := Serialize([]Record{{Type: 1, Data: make([]byte, MaxDataSize+1)}})
	assert.ErrorIs(t, err, ErrDataTooLarge)
}

func TestDeserializeTruncated(t *testing.T) {
	rs := []Record{{Type: TypeUnpadded, Data: []byte("payload")}}
	blob, err := Serialize(rs)
	require.NoError(t, err)

	_, err = Deserialize(blob[:recordHeaderSize-1], 1)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = Deserialize(blob[:len(blob)-1], 1)
	assert.ErrorIs(t, err, ErrTruncated)

	// Asking for more records than the block holds.
	_, err = Deserialize(blob, 2)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1023: 1024, 1024: 1024, 1025: 2048}
	for in, want := range cases {
		assert.Equal(t, want, nextPow2(in), "nextPow2(%d)", in)
	}
}
