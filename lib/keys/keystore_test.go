package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	ks := NewIdentityKeystore(dir)

	key, err := ks.LoadOrCreate()
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, KeyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := ks.LoadOrCreate()
	require.NoError(t, err)
	assert.True(t, key.PeerIdentity().Equal(again.PeerIdentity()),
		"a second load must return the same identity")
}

func TestLoadOrCreateCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "keydir")
	ks := NewIdentityKeystore(dir)

	_, err := ks.LoadOrCreate()
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, KeyFileName))
	assert.NoError(t, err)
}

func TestLoadOrCreateRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyFileName), []byte("short"), 0o600))

	_, err := NewIdentityKeystore(dir).LoadOrCreate()
	assert.ErrorIs(t, err, ErrCorruptKeyFile)
}
