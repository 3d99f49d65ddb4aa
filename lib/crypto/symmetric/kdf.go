package symmetric

import (
	"crypto/sha256"
	"io"

	"github.com/samber/oops"
	"golang.org/x/crypto/hkdf"
)

const (
	// CipherKeySize is the AES-256 key length.
	CipherKeySize = 32

	// CipherIVSize is the CTR counter block length.
	CipherIVSize = 16

	// MACKeySize is the HMAC key length.
	MACKeySize = 32
)

// SessionKeys is one direction's worth of symmetric material for a link.
type SessionKeys struct {
	CipherKey [CipherKeySize]byte
	CipherIV  [CipherIVSize]byte
	MACKey    MACKey
}

// DeriveSessionKeys expands a Diffie-Hellman shared secret into cipher key,
// counter IV and initial MAC key. The identity of the *decrypting* party is
// the HKDF salt, so the two directions of one link use distinct keys even
// though the underlying shared secret is symmetric.
func DeriveSessionKeys(sharedSecret [32]byte, decryptorIdentity []byte) (SessionKeys, error) {
	var keys SessionKeys
	if err := expand(sharedSecret, decryptorIdentity, "tcp-communicator cipher key", keys.CipherKey[:]); err != nil {
		return keys, err
	}
	if err := expand(sharedSecret, decryptorIdentity, "tcp-communicator cipher iv", keys.CipherIV[:]); err != nil {
		return keys, err
	}
	if err := expand(sharedSecret, decryptorIdentity, "tcp-communicator hmac key", keys.MACKey[:]); err != nil {
		return keys, err
	}
	return keys, nil
}

func expand(secret [32]byte, salt []byte, info string, out []byte) error {
	r := hkdf.New(sha256.New, secret[:], salt, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return oops.Errorf("session key derivation failed: %w", err)
	}
	return nil
}

// Wipe clears the key material.
func (k *SessionKeys) Wipe() {
	for i := range k.CipherKey {
		k.CipherKey[i] = 0
	}
	for i := range k.CipherIV {
		k.CipherIV[i] = 0
	}
	for i := range k.MACKey {
		k.MACKey[i] = 0
	}
}
