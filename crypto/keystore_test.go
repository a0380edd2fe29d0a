package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "admin.keystore")

	require.NoError(t, SaveToKeystoreWithCost(path, key, "pass", LightCost))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	addr, err := KeystoreAddress(path)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), addr.String())

	loaded, err := LoadFromKeystore(path, "pass")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Raw(), loaded.PubKey().Address().Raw())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestKeystoreOverwriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "admin.keystore")
	for i := 0; i < 2; i++ {
		key, err := GeneratePrivateKey()
		require.NoError(t, err)
		require.NoError(t, SaveToKeystoreWithCost(path, key, "pass", LightCost))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestKeystoreRejectsBadInput(t *testing.T) {
	require.Error(t, SaveToKeystore("", nil, "pass"))
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.Error(t, SaveToKeystore(" ", key, "pass"))
	_, err = LoadFromKeystore("", "pass")
	require.Error(t, err)
}
