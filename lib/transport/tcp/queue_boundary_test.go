package tcp

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/symmetric"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/util/time/monotonic"
)

// sendState mirrors the remote writer for white-box stream construction.
type sendState struct {
	cipher *symmetric.Cipher
	mac    symmetric.MACKey
}

func (s *sendState) box(payload []byte) []byte {
	frame := make([]byte, FrameOverhead+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], FrameTypeBox)
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))
	copy(frame[FrameOverhead:], payload)
	tag, next := symmetric.Auth(s.mac, payload)
	copy(frame[FrameHeaderSize:FrameOverhead], tag[:])
	s.mac = next
	return frame
}

func (s *sendState) rekey(body []byte, successorMAC symmetric.MACKey) []byte {
	frame := make([]byte, RekeyFrameSize)
	binary.BigEndian.PutUint16(frame[0:2], FrameTypeRekey)
	binary.BigEndian.PutUint16(frame[2:4], RekeyFrameSize)
	copy(frame[FrameOverhead:], body)
	tag, _ := symmetric.Auth(s.mac, frame)
	copy(frame[FrameHeaderSize:FrameOverhead], tag[:])
	s.mac = successorMAC
	return frame
}

// receiverQueue builds a Queue with a live inbound direction plus the
// matching remote send state, without running any goroutines.
func receiverQueue(t *testing.T, recv *collector) (*Queue, *sendState, *eddsa.PrivateKey) {
	t.Helper()
	ourKey, err := eddsa.GeneratePrivateKey()
	require.NoError(t, err)
	peerKey, err := eddsa.GeneratePrivateKey()
	require.NoError(t, err)

	comm := NewCommunicator(ourKey, testConfig(), monotonic.NewClock(), recv)
	t.Cleanup(comm.Stop)

	var secret [32]byte
	copy(secret[:], "boundary test shared secret.....")
	keys, err := symmetric.DeriveSessionKeys(secret, ourKey.PeerIdentity().Bytes())
	require.NoError(t, err)
	inCipher, err := symmetric.NewCipher(keys)
	require.NoError(t, err)
	sendCipher, err := symmetric.NewCipher(keys)
	require.NoError(t, err)

	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })

	q := newQueue(comm, c1, "tcp-127.0.0.1:1", peerKey.PeerIdentity(),
		directionKeys{cipher: inCipher, mac: keys.MACKey}, directionKeys{})
	return q, &sendState{cipher: sendCipher, mac: keys.MACKey}, peerKey
}

func (s *sendState) encipher(plain []byte) []byte {
	ct := make([]byte, len(plain))
	s.cipher.XORStream(ct, plain)
	return ct
}

func feed(t *testing.T, q *Queue, ciphertext []byte) error {
	t.Helper()
	require.True(t, q.cread.append(ciphertext))
	return q.processFrames()
}

// A Box, a Rekey, and another Box under the new keys arrive in one read. The
// receiver must swap its inbound cipher at the exact frame boundary and
// deliver both payloads intact.
func TestRekeyBoundaryByteExact(t *testing.T) {
	recv := &collector{}
	q, snd, peerKey := receiverQueue(t, recv)

	clock := monotonic.NewClock()
	body, successor, err := buildRekeyBody(peerKey, q.comm.key.PeerIdentity(), clock.Timestamp())
	require.NoError(t, err)
	defer successor.close()

	stream := snd.encipher(snd.box([]byte("before rekey")))
	stream = append(stream, snd.encipher(snd.rekey(body, successor.mac))...)
	// From here the sender writes under the successor keys.
	snd.cipher = successor.cipher
	stream = append(stream, snd.encipher(snd.box([]byte("after rekey")))...)

	require.NoError(t, feed(t, q, stream))

	require.Equal(t, 2, recv.count())
	assert.Equal(t, []byte("before rekey"), recv.payload(0))
	assert.Equal(t, []byte("after rekey"), recv.payload(1))
	assert.Equal(t, 0, q.cread.len(), "stream fully consumed")
}

// If the sender keeps the old cipher one byte too long past the rekey frame,
// the receiver's post-rekey decryption produces garbage and the connection
// must die as a protocol violation, not deliver corrupted data.
func TestRekeyBoundaryOffByOne(t *testing.T) {
	recv := &collector{}
	q, snd, peerKey := receiverQueue(t, recv)

	clock := monotonic.NewClock()
	body, successor, err := buildRekeyBody(peerKey, q.comm.key.PeerIdentity(), clock.Timestamp())
	require.NoError(t, err)
	defer successor.close()

	after := snd.box([]byte("after rekey"))
	stream := snd.encipher(snd.rekey(body, successor.mac))
	// One byte too many under the old cipher.
	stream = append(stream, snd.encipher(after[:1])...)
	snd.cipher = successor.cipher
	stream = append(stream, snd.encipher(after[1:])...)

	err = feed(t, q, stream)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Zero(t, recv.count(), "no payload may be delivered from a desynchronized stream")
}

// A non-monotonic rekey timestamp is a replay and must be rejected.
func TestRekeyReplayRejected(t *testing.T) {
	recv := &collector{}
	q, snd, peerKey := receiverQueue(t, recv)
	q.lastPeerTimestamp = monotonic.NewClock().Timestamp()

	body, successor, err := buildRekeyBody(peerKey, q.comm.key.PeerIdentity(), q.lastPeerTimestamp)
	require.NoError(t, err)
	successor.close()

	err = feed(t, q, snd.encipher(snd.rekey(body, successor.mac)))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

// Tampering with an enciphered Box flips plaintext bits one-to-one under
// CTR; the MAC must catch it.
func TestTamperedBoxRejected(t *testing.T) {
	recv := &collector{}
	q, snd, _ := receiverQueue(t, recv)

	ct := snd.encipher(snd.box([]byte("payload")))
	ct[FrameOverhead] ^= 1

	err := feed(t, q, ct)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Zero(t, recv.count())
}

func TestUnknownFrameTypeRejected(t *testing.T) {
	recv := &collector{}
	q, snd, _ := receiverQueue(t, recv)

	frame := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint16(frame[0:2], 0x0BAD)
	binary.BigEndian.PutUint16(frame[2:4], 0)

	err := feed(t, q, snd.encipher(frame))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

// The last ack landing after a destroy deregisters the queue but must not
// wipe the reader's cipher out from under it.
func TestLateAckKeepsReaderStateUsable(t *testing.T) {
	recv := &collector{hold: true}
	q, snd, _ := receiverQueue(t, recv)

	require.NoError(t, feed(t, q, snd.encipher(snd.box([]byte("one")))))
	require.Equal(t, 1, q.Backpressure())

	q.destroy(nil)
	recv.releaseAck(t, 0)
	require.Equal(t, 0, q.Backpressure())

	require.NotPanics(t, func() {
		require.NoError(t, feed(t, q, snd.encipher(snd.box([]byte("two")))))
	})
	require.Equal(t, 2, recv.count())
	assert.Equal(t, []byte("two"), recv.payload(1))
}

func TestPartialFrameWaitsForMoreBytes(t *testing.T) {
	recv := &collector{}
	q, snd, _ := receiverQueue(t, recv)

	ct := snd.encipher(snd.box([]byte("split across reads")))
	require.NoError(t, feed(t, q, ct[:7]))
	assert.Zero(t, recv.count())

	require.NoError(t, feed(t, q, ct[7:]))
	require.Equal(t, 1, recv.count())
	assert.Equal(t, []byte("split across reads"), recv.payload(0))
}
