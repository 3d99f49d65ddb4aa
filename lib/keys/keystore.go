// Package keys persists the communicator's long-term identity key. The key
// is stored as a raw Ed25519 seed in a mode-0600 file; everything derived
// from it (peer identity, DH scalar) is recomputed on load.
package keys

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/crypto/eddsa"
	"github.com/GNUnet-Mirror/GNUnet-sub001/lib/util/logger"
)

var log = logger.GetLogger()

// KeyFileName is the file holding the identity seed inside the key dir.
const KeyFileName = "communicator.key"

var (
	ErrCorruptKeyFile = oops.New("identity key file has wrong size")
)

// IdentityKeystore loads and stores one identity key in a directory.
type IdentityKeystore struct {
	dir string
}

// NewIdentityKeystore returns a keystore rooted at dir.
func NewIdentityKeystore(dir string) *IdentityKeystore {
	return &IdentityKeystore{dir: dir}
}

// LoadOrCreate returns the stored identity key, generating and persisting a
// fresh one if none exists yet.
func (ks *IdentityKeystore) LoadOrCreate() (*eddsa.PrivateKey, error) {
	path := filepath.Join(ks.dir, KeyFileName)

	seed, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(seed) != eddsa.SeedSize {
			return nil, oops.Wrapf(ErrCorruptKeyFile, "%s holds %d bytes", path, len(seed))
		}
		key, err := eddsa.NewPrivateKeyFromSeed(seed)
		if err != nil {
			return nil, err
		}
		log.WithField("identity", key.PeerIdentity()).Debug("Loaded identity key")
		return key, nil
	case os.IsNotExist(err):
		return ks.create(path)
	default:
		return nil, oops.Errorf("reading identity key: %w", err)
	}
}

func (ks *IdentityKeystore) create(path string) (*eddsa.PrivateKey, error) {
	if err := os.MkdirAll(ks.dir, 0o700); err != nil {
		return nil, oops.Errorf("creating key directory: %w", err)
	}
	key, err := eddsa.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key.Seed(), 0o600); err != nil {
		return nil, oops.Errorf("writing identity key: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"path":     path,
		"identity": key.PeerIdentity(),
	}).Debug("Generated new identity key")
	return key, nil
}
