package ecdhe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
)

// The ephemeral side derives against the peer's identity point, the identity
// side derives against the ephemeral public key. Both must land on the same
// secret or no key exchange ever succeeds.
func TestSharedSecretAgreement(t *testing.T) {
	identity, err := eddsa.GeneratePrivateKey()
	require.NoError(t, err)

	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	pub := kp.Public()

	fromEphemeral, err := kp.ECDH(identity.PeerIdentity())
	require.NoError(t, err)

	fromIdentity, err := identity.ECDH(pub)
	require.NoError(t, err)

	assert.Equal(t, fromEphemeral, fromIdentity)
}

func TestECDHConsumesScalar(t *testing.T) {
	identity, err := eddsa.GeneratePrivateKey()
	require.NoError(t, err)

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = kp.ECDH(identity.PeerIdentity())
	require.NoError(t, err)

	_, err = kp.ECDH(identity.PeerIdentity())
	assert.ErrorIs(t, err, ErrKeyConsumed)
}

func TestPublicSurvivesZero(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	before := kp.Public()
	kp.Zero()
	assert.Equal(t, before, kp.Public())
}

func TestDistinctKeyPairs(t *testing.T) {
	a, err := GenerateKeyPair()
	require.NoError(t, err)
	b, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.NotEqual(t, a.Public(), b.Public())
}
