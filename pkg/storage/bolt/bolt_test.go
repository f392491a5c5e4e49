package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/vaultsync/pkg/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "store.bolt"))
	require.NoError(t, err)
	defer s.Close()

	storagetest.Run(t, s)
}

func TestStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.bolt")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetValue(ctx, "k", "v"))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.GetValue(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
