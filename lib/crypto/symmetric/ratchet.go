package symmetric

import (
	"crypto/hmac"
	"crypto/sha256"
)

// MACSize is the truncated tag length carried in every frame.
const MACSize = 16

// MACKey is a ratcheting frame-authentication key.
type MACKey [MACKeySize]byte

// MACTag is a truncated HMAC-SHA256 tag.
type MACTag [MACSize]byte

// Auth computes the tag for one frame and returns the successor key
// (SHA-256 of the current key). Each side must call it exactly once per
// frame, in strict frame order; skipping or reordering desynchronizes the
// ratchet, which is unrecoverable and must drop the connection.
func Auth(key MACKey, msg []byte) (MACTag, MACKey) {
	var tag MACTag
	mac := hmac.New(sha256.New, key[:])
	mac.Write(msg)
	copy(tag[:], mac.Sum(nil))
	return tag, MACKey(sha256.Sum256(key[:]))
}

// TagEqual compares tags in constant time.
func TagEqual(a, b MACTag) bool {
	return hmac.Equal(a[:], b[:])
}
