package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// exerciseStore runs the behaviour every KeyValueStore must share
func exerciseStore(t *testing.T, store core.KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "session")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, store.Set(ctx, "session", []byte(`{"a":1}`)))
	got, err := store.Get(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	require.NoError(t, store.Set(ctx, "session", []byte(`{"a":2}`)))
	got, err = store.Get(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	require.NoError(t, store.Set(ctx, "other", []byte("x")))
	require.NoError(t, store.Delete(ctx, "session"))
	_, err = store.Get(ctx, "session")
	assert.ErrorIs(t, err, core.ErrNotFound)

	got, err = store.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))

	assert.NoError(t, store.Delete(ctx, "missing"))
	assert.NoError(t, store.Close())
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(zap.NewNop()))
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore(zap.NewNop())
	value := []byte("abc")
	require.NoError(t, store.Set(context.Background(), "k", value))
	value[0] = 'z'

	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "state"), zap.NewNop())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFileStoreEscapesKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), "../escape", []byte("v")))
	assert.FileExists(t, filepath.Join(dir, "..%2Fescape.json"))
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), zap.NewNop())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestKeyringStore(t *testing.T) {
	exerciseStore(t, NewKeyringStoreFromRing(keyring.NewArrayKeyring(nil), zap.NewNop()))
}
