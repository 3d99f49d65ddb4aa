package eddsa

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	payload := []byte("handshake confirmation payload")
	sig := key.Sign(SigPurposeHandshake, payload)

	assert.True(t, Verify(key.PeerIdentity(), SigPurposeHandshake, payload, sig[:]))
}

func TestVerifyRejectsWrongPurpose(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	payload := []byte("same bytes, different purpose")
	sig := key.Sign(SigPurposeHandshake, payload)

	assert.False(t, Verify(key.PeerIdentity(), SigPurposeRekey, payload, sig[:]),
		"a handshake signature must not verify as a rekey signature")
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	alice, err := GeneratePrivateKey()
	require.NoError(t, err)
	bob, err := GeneratePrivateKey()
	require.NoError(t, err)

	payload := []byte("payload")
	sig := alice.Sign(SigPurposeHandshake, payload)

	assert.False(t, Verify(bob.PeerIdentity(), SigPurposeHandshake, payload, sig[:]))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	payload := []byte("original payload")
	sig := key.Sign(SigPurposeHandshake, payload)
	payload[0] ^= 1

	assert.False(t, Verify(key.PeerIdentity(), SigPurposeHandshake, payload, sig[:]))
}

func TestSeedRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	restored, err := NewPrivateKeyFromSeed(key.Seed())
	require.NoError(t, err)

	assert.True(t, key.PeerIdentity().Equal(restored.PeerIdentity()))

	payload := []byte("payload")
	sig := restored.Sign(SigPurposeRekey, payload)
	assert.True(t, Verify(key.PeerIdentity(), SigPurposeRekey, payload, sig[:]))
}

func TestNewPrivateKeyFromSeedRejectsBadLength(t *testing.T) {
	_, err := NewPrivateKeyFromSeed(make([]byte, SeedSize-1))
	assert.Error(t, err)
}

func TestIdentityMontgomeryMapping(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	a, err := key.PeerIdentity().X25519()
	require.NoError(t, err)
	b, err := key.PeerIdentity().X25519()
	require.NoError(t, err)

	assert.Equal(t, a, b, "mapping must be deterministic")
	assert.False(t, bytes.Equal(a[:], key.PeerIdentity().Bytes()),
		"Montgomery form differs from the Edwards encoding")
}

func TestPeerIdentityEqual(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	other, err := GeneratePrivateKey()
	require.NoError(t, err)

	assert.True(t, key.PeerIdentity().Equal(key.PeerIdentity()))
	assert.False(t, key.PeerIdentity().Equal(other.PeerIdentity()))
}
