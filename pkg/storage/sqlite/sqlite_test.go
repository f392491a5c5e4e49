package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/vaultsync/pkg/storage/storagetest"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStoreContract(t *testing.T) {
	s, _ := openTestStore(t)
	storagetest.Run(t, s)
}

func TestStorePersists(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)
	require.NoError(t, s.SetValue(ctx, "k", "v"))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetValue(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestStorePermissions(t *testing.T) {
	_, path := openTestStore(t)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
