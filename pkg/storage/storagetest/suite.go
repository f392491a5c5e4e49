// Package storagetest holds conformance tests shared by storage implementations.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/vaultsync/pkg/storage"
)

// Run exercises s against the storage.Interface contract. s must start empty.
func Run(t *testing.T, s storage.Interface) {
	t.Helper()
	ctx := context.Background()

	_, err := s.GetValue(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SetValue(ctx, "b", "2"))
	require.NoError(t, s.SetValue(ctx, "a", "1"))
	require.NoError(t, s.SetValue(ctx, "a", "one"))

	got, err := s.GetValue(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	keys, err := s.GetAllKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, s.RemoveKey(ctx, "a"))
	require.NoError(t, s.RemoveKey(ctx, "a"))
	_, err = s.GetValue(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
