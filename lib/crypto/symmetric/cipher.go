// Package symmetric holds the per-connection symmetric primitives: the
// AES-CTR stream cipher, the HKDF that turns a Diffie-Hellman secret into
// session keys, and the ratcheting frame authenticator.
package symmetric

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/samber/oops"
)

var (
	ErrCipherClosed = oops.New("stream cipher already closed")
)

// Cipher is a keyed AES-256-CTR stream context. It is exclusively owned by
// one connection slot (inbound or outbound) and is replaced wholesale at
// rekey time; the two slots never alias one context.
type Cipher struct {
	stream cipher.Stream
	keys   SessionKeys
	closed bool
}

// NewCipher creates a stream context from derived session keys.
func NewCipher(keys SessionKeys) (*Cipher, error) {
	block, err := aes.NewCipher(keys.CipherKey[:])
	if err != nil {
		return nil, oops.Errorf("creating AES cipher: %w", err)
	}
	return &Cipher{
		stream: cipher.NewCTR(block, keys.CipherIV[:]),
		keys:   keys,
	}, nil
}

// XORStream transforms src into dst, advancing the counter stream. Safe to
// call repeatedly on contiguous sub-ranges as bytes become available; there
// is no block-alignment requirement. dst and src may overlap exactly.
func (c *Cipher) XORStream(dst, src []byte) {
	if c.closed {
		panic("symmetric: XORStream on closed cipher")
	}
	c.stream.XORKeyStream(dst, src)
}

// Close wipes the key material. The context must not be used afterwards.
func (c *Cipher) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.stream = nil
	c.keys.Wipe()
}
