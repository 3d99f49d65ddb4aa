// Package eddsa wraps the long-term Ed25519 identity keys of the transport.
//
// Identity keys serve double duty: they sign handshake confirmations, and
// they act as the static side of the ephemeral-static Diffie-Hellman during
// key exchange (the Edwards point is mapped to its Montgomery form so the
// same key material works for X25519).
package eddsa

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"

	"filippo.io/edwards25519"
	"github.com/samber/oops"
	"golang.org/x/crypto/curve25519"
)

const (
	// PeerIdentitySize is the byte length of a peer identity (an Ed25519
	// public key).
	PeerIdentitySize = 32

	// SignatureSize is the byte length of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize

	// SeedSize is the byte length of a private key seed.
	SeedSize = ed25519.SeedSize
)

// Signature purposes. A signature made for one purpose never verifies under
// another because the purpose is part of the signed bytes.
const (
	// SigPurposeHandshake covers the initial key exchange confirmation.
	SigPurposeHandshake uint32 = 27

	// SigPurposeRekey covers in-band rekey announcements.
	SigPurposeRekey uint32 = 28
)

var (
	ErrInvalidSeed     = oops.New("invalid Ed25519 seed length")
	ErrInvalidIdentity = oops.New("peer identity is not a valid Ed25519 point")
)

// PeerIdentity identifies a participant by its Ed25519 public key.
// Compared by byte equality.
type PeerIdentity [PeerIdentitySize]byte

// Bytes returns the raw public key bytes.
func (p PeerIdentity) Bytes() []byte {
	return p[:]
}

// Equal reports whether two identities are the same key, in constant time.
func (p PeerIdentity) Equal(other PeerIdentity) bool {
	return subtle.ConstantTimeCompare(p[:], other[:]) == 1
}

// String returns a short hex form for logging.
func (p PeerIdentity) String() string {
	return hex.EncodeToString(p[:8])
}

// X25519 maps the identity's Edwards point to its Montgomery form so it can
// be used as the static side of an X25519 exchange.
func (p PeerIdentity) X25519() ([32]byte, error) {
	var mont [32]byte
	point, err := new(edwards25519.Point).SetBytes(p[:])
	if err != nil {
		return mont, oops.Wrapf(ErrInvalidIdentity, "decoding identity point")
	}
	copy(mont[:], point.BytesMontgomery())
	return mont, nil
}

// PrivateKey is a long-term Ed25519 identity key.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// GeneratePrivateKey creates a fresh identity key.
func GeneratePrivateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, oops.Errorf("failed to generate identity key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// NewPrivateKeyFromSeed restores an identity key from its 32-byte seed.
func NewPrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, ErrInvalidSeed
	}
	return &PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Seed returns the 32-byte seed for persistence.
func (k *PrivateKey) Seed() []byte {
	return k.key.Seed()
}

// PeerIdentity returns the public identity of this key.
func (k *PrivateKey) PeerIdentity() PeerIdentity {
	var id PeerIdentity
	copy(id[:], k.key.Public().(ed25519.PublicKey))
	return id
}

// Sign signs payload under the given purpose.
func (k *PrivateKey) Sign(purpose uint32, payload []byte) [SignatureSize]byte {
	var sig [SignatureSize]byte
	copy(sig[:], ed25519.Sign(k.key, signedBytes(purpose, payload)))
	return sig
}

// ECDH computes the shared secret between this long-term key and a peer's
// ephemeral X25519 public key. Used by the decrypting side of a key
// exchange, which never sees the ephemeral private scalar.
func (k *PrivateKey) ECDH(ephemeralPub [32]byte) ([32]byte, error) {
	var secret [32]byte
	scalar := montgomeryScalar(k.key.Seed())
	shared, err := curve25519.X25519(scalar[:], ephemeralPub[:])
	zero(scalar[:])
	if err != nil {
		return secret, oops.Errorf("identity ECDH failed: %w", err)
	}
	copy(secret[:], shared)
	return secret, nil
}

// Verify checks a purpose-bound signature against the signer's identity.
func Verify(signer PeerIdentity, purpose uint32, payload []byte, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(signer[:]), signedBytes(purpose, payload), sig)
}

// signedBytes is the canonical byte sequence actually signed:
// size (4, NBO) || purpose (4, NBO) || payload. Both sides must build it
// identically or verification fails.
func signedBytes(purpose uint32, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(payload)))
	binary.BigEndian.PutUint32(out[4:8], purpose)
	copy(out[8:], payload)
	return out
}

// montgomeryScalar derives the clamped X25519 scalar corresponding to an
// Ed25519 seed, per RFC 8032 key expansion.
func montgomeryScalar(seed []byte) [32]byte {
	h := sha512.Sum512(seed)
	var scalar [32]byte
	copy(scalar[:], h[:32])
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	return scalar
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
