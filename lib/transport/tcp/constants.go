package tcp

import (
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/symmetric"
)

const (
	// EphemeralKeySize is the X25519 public key length on the wire.
	EphemeralKeySize = 32

	// TimestampSize is the monotonic timestamp length (µs, NBO).
	TimestampSize = 8

	// kxConfirmSize is the enciphered tail of the initial KX blob:
	// sender identity || signature || timestamp.
	kxConfirmSize = eddsa.PeerIdentitySize + eddsa.SignatureSize + TimestampSize

	// InitialKXSize is the exact size of the initial key exchange blob.
	// Nothing shorter or longer ever reaches the decrypt stage.
	InitialKXSize = EphemeralKeySize + kxConfirmSize
)

// Frame types multiplexed over one encrypted connection. 2 bytes, NBO.
const (
	// FrameTypeBox carries an application payload. Its length field counts
	// the payload ONLY — the frame header and MAC are excluded, unlike the
	// other frame types. This keeps the full 16-bit range addressable for
	// payload bytes and must not be "fixed".
	FrameTypeBox uint16 = 0x0177

	// FrameTypeRekey announces a new ephemeral key mid-stream. Its length
	// field is the TOTAL frame size.
	FrameTypeRekey uint16 = 0x0178

	// FrameTypeFinish is a graceful close. Its length field is the TOTAL
	// frame size.
	FrameTypeFinish uint16 = 0x0179
)

const (
	// FrameHeaderSize is type (2) + length (2).
	FrameHeaderSize = 4

	// FrameOverhead is the fixed per-frame cost: header plus MAC.
	FrameOverhead = FrameHeaderSize + symmetric.MACSize

	// RekeyFrameSize is the fixed total size of a Rekey frame:
	// overhead || ephemeral key || signature || timestamp.
	RekeyFrameSize = FrameOverhead + EphemeralKeySize + eddsa.SignatureSize + TimestampSize

	// FinishFrameSize is the fixed total size of a Finish frame.
	FinishFrameSize = FrameOverhead

	// MaxBoxPayload is the largest application payload one Box can carry.
	MaxBoxPayload = 1<<16 - 1

	// bufSize is the capacity of each of the four per-connection buffers.
	// Must exceed the largest possible frame (FrameOverhead+MaxBoxPayload)
	// so extraction always makes progress.
	bufSize = 2 * 64 * 1024
)
