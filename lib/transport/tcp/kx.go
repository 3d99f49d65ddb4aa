package tcp

import (
	"encoding/binary"

	"github.com/samber/oops"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/ecdhe"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/symmetric"
)

// directionKeys is one direction's live crypto state: the stream cipher and
// the current ratchet MAC key. A Queue owns exactly one inbound and one
// outbound instance; they never alias.
type directionKeys struct {
	cipher *symmetric.Cipher
	mac    symmetric.MACKey
}

func (d *directionKeys) close() {
	if d.cipher != nil {
		d.cipher.Close()
		d.cipher = nil
	}
}

// kxSignaturePayload is the canonical byte sequence signed during the
// initial handshake and during rekey: sender || receiver || ephemeral ||
// timestamp. (The purpose tag is prepended by the signing wrapper.) Both
// sides must reconstruct it identically or verification fails; binding the
// receiver identity prevents replaying a KX at a different peer.
func kxSignaturePayload(sender, receiver eddsa.PeerIdentity, ephemeral [EphemeralKeySize]byte, ts uint64) []byte {
	out := make([]byte, 0, 2*eddsa.PeerIdentitySize+EphemeralKeySize+TimestampSize)
	out = append(out, sender.Bytes()...)
	out = append(out, receiver.Bytes()...)
	out = append(out, ephemeral[:]...)
	out = binary.BigEndian.AppendUint64(out, ts)
	return out
}

// newDirection generates a fresh ephemeral key, derives the keys the remote
// side will use to decrypt our stream, and signs the introduction. The
// ephemeral private scalar is consumed by the single ECDH inside.
func newDirection(local *eddsa.PrivateKey, remote eddsa.PeerIdentity, purpose uint32, ts uint64) (eph [EphemeralKeySize]byte, sig [eddsa.SignatureSize]byte, keys symmetric.SessionKeys, err error) {
	kp, err := ecdhe.GenerateKeyPair()
	if err != nil {
		return
	}
	eph = kp.Public()
	shared, err := kp.ECDH(remote)
	if err != nil {
		return
	}
	// The remote side decrypts this direction, so its identity salts the KDF.
	keys, err = symmetric.DeriveSessionKeys(shared, remote.Bytes())
	if err != nil {
		return
	}
	sig = local.Sign(purpose, kxSignaturePayload(local.PeerIdentity(), remote, eph, ts))
	return
}

// buildInitialKX produces the fixed-size initial key exchange blob:
// ephemeral public key, then the enciphered confirmation {sender identity ||
// signature || timestamp}. The returned cipher has already processed the
// confirmation bytes and continues as this side's outbound session stream.
func buildInitialKX(local *eddsa.PrivateKey, remote eddsa.PeerIdentity, ts uint64) ([]byte, directionKeys, error) {
	eph, sig, keys, err := newDirection(local, remote, eddsa.SigPurposeHandshake, ts)
	if err != nil {
		return nil, directionKeys{}, wrapErr(err, "initial key exchange")
	}
	cipher, err := symmetric.NewCipher(keys)
	if err != nil {
		return nil, directionKeys{}, wrapErr(err, "initial key exchange")
	}

	blob := make([]byte, InitialKXSize)
	copy(blob[:EphemeralKeySize], eph[:])

	confirm := make([]byte, 0, kxConfirmSize)
	sender := local.PeerIdentity()
	confirm = append(confirm, sender.Bytes()...)
	confirm = append(confirm, sig[:]...)
	confirm = binary.BigEndian.AppendUint64(confirm, ts)
	cipher.XORStream(blob[EphemeralKeySize:], confirm)

	return blob, directionKeys{cipher: cipher, mac: keys.MACKey}, nil
}

// parseInitialKX validates an initial key exchange blob of exactly
// InitialKXSize bytes and returns the verified sender identity plus the
// inbound session state (cipher already advanced past the confirmation).
// All failure modes collapse into ErrHandshakeFailed so an attacker cannot
// distinguish a bad signature from a bad sender.
func parseInitialKX(local *eddsa.PrivateKey, blob []byte) (eddsa.PeerIdentity, directionKeys, uint64, error) {
	var sender eddsa.PeerIdentity
	if len(blob) != InitialKXSize {
		return sender, directionKeys{}, 0, ErrHandshakeFailed
	}

	var eph [EphemeralKeySize]byte
	copy(eph[:], blob[:EphemeralKeySize])

	shared, err := local.ECDH(eph)
	if err != nil {
		return sender, directionKeys{}, 0, ErrHandshakeFailed
	}
	me := local.PeerIdentity()
	keys, err := symmetric.DeriveSessionKeys(shared, me.Bytes())
	if err != nil {
		return sender, directionKeys{}, 0, ErrHandshakeFailed
	}
	cipher, err := symmetric.NewCipher(keys)
	if err != nil {
		return sender, directionKeys{}, 0, ErrHandshakeFailed
	}

	confirm := make([]byte, kxConfirmSize)
	cipher.XORStream(confirm, blob[EphemeralKeySize:])

	copy(sender[:], confirm[:eddsa.PeerIdentitySize])
	sig := confirm[eddsa.PeerIdentitySize : eddsa.PeerIdentitySize+eddsa.SignatureSize]
	ts := binary.BigEndian.Uint64(confirm[eddsa.PeerIdentitySize+eddsa.SignatureSize:])

	if !eddsa.Verify(sender, eddsa.SigPurposeHandshake, kxSignaturePayload(sender, me, eph, ts), sig) {
		cipher.Close()
		return sender, directionKeys{}, 0, ErrHandshakeFailed
	}
	return sender, directionKeys{cipher: cipher, mac: keys.MACKey}, ts, nil
}

// buildRekeyBody produces the body of a Rekey frame (ephemeral || signature
// || timestamp) plus the successor outbound state. The body travels inside
// the regular enciphered stream; the successor cipher must be installed only
// after the frame carrying it has been fully enciphered under the old key.
func buildRekeyBody(local *eddsa.PrivateKey, remote eddsa.PeerIdentity, ts uint64) ([]byte, directionKeys, error) {
	eph, sig, keys, err := newDirection(local, remote, eddsa.SigPurposeRekey, ts)
	if err != nil {
		return nil, directionKeys{}, wrapErr(err, "rekey")
	}
	cipher, err := symmetric.NewCipher(keys)
	if err != nil {
		return nil, directionKeys{}, wrapErr(err, "rekey")
	}

	body := make([]byte, 0, EphemeralKeySize+eddsa.SignatureSize+TimestampSize)
	body = append(body, eph[:]...)
	body = append(body, sig[:]...)
	body = binary.BigEndian.AppendUint64(body, ts)
	return body, directionKeys{cipher: cipher, mac: keys.MACKey}, nil
}

// applyRekeyBody verifies a received Rekey body against the connection's
// established peer and derives the successor inbound state.
func applyRekeyBody(local *eddsa.PrivateKey, peer eddsa.PeerIdentity, body []byte) (directionKeys, uint64, error) {
	var eph [EphemeralKeySize]byte
	copy(eph[:], body[:EphemeralKeySize])
	sig := body[EphemeralKeySize : EphemeralKeySize+eddsa.SignatureSize]
	ts := binary.BigEndian.Uint64(body[EphemeralKeySize+eddsa.SignatureSize:])

	me := local.PeerIdentity()
	if !eddsa.Verify(peer, eddsa.SigPurposeRekey, kxSignaturePayload(peer, me, eph, ts), sig) {
		return directionKeys{}, 0, oops.Wrapf(ErrProtocolViolation, "rekey signature invalid")
	}
	shared, err := local.ECDH(eph)
	if err != nil {
		return directionKeys{}, 0, oops.Wrapf(ErrProtocolViolation, "rekey ECDH failed")
	}
	keys, err := symmetric.DeriveSessionKeys(shared, me.Bytes())
	if err != nil {
		return directionKeys{}, 0, wrapErr(err, "rekey")
	}
	cipher, err := symmetric.NewCipher(keys)
	if err != nil {
		return directionKeys{}, 0, wrapErr(err, "rekey")
	}
	return directionKeys{cipher: cipher, mac: keys.MACKey}, ts, nil
}
