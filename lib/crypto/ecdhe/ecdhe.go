// Package ecdhe provides the one-shot ephemeral X25519 key pairs used by the
// initial key exchange and by in-band rekeying. The private scalar is wiped
// as soon as a shared secret has been derived; it must never outlive one
// derivation.
package ecdhe

import (
	"crypto/rand"

	"github.com/samber/oops"
	"golang.org/x/crypto/curve25519"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
)

// KeySize is the byte length of an X25519 public key.
const KeySize = 32

var (
	ErrKeyConsumed = oops.New("ephemeral private key already consumed")
)

// KeyPair is a single-use X25519 key pair.
type KeyPair struct {
	priv     [KeySize]byte
	pub      [KeySize]byte
	consumed bool
}

// GenerateKeyPair creates a fresh ephemeral key pair.
func GenerateKeyPair() (*KeyPair, error) {
	kp := &KeyPair{}
	if _, err := rand.Read(kp.priv[:]); err != nil {
		return nil, oops.Errorf("failed to generate ephemeral key: %w", err)
	}
	pub, err := curve25519.X25519(kp.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, oops.Errorf("failed to derive ephemeral public key: %w", err)
	}
	copy(kp.pub[:], pub)
	return kp, nil
}

// Public returns the public key; it remains valid after the scalar is wiped.
func (kp *KeyPair) Public() [KeySize]byte {
	return kp.pub
}

// ECDH derives the shared secret against a peer's long-term identity and
// wipes the private scalar. Calling it a second time fails.
func (kp *KeyPair) ECDH(peer eddsa.PeerIdentity) ([32]byte, error) {
	var secret [32]byte
	if kp.consumed {
		return secret, ErrKeyConsumed
	}
	mont, err := peer.X25519()
	if err != nil {
		kp.Zero()
		return secret, err
	}
	shared, err := curve25519.X25519(kp.priv[:], mont[:])
	kp.Zero()
	if err != nil {
		return secret, oops.Errorf("ephemeral ECDH failed: %w", err)
	}
	copy(secret[:], shared)
	return secret, nil
}

// Zero wipes the private scalar. Idempotent.
func (kp *KeyPair) Zero() {
	for i := range kp.priv {
		kp.priv[i] = 0
	}
	kp.consumed = true
}
