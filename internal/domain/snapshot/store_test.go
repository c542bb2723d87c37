package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"file": NewFileStore(t.TempDir()),
		"mem":  NewMemStore(),
	}
}

func TestStore_SaveAndContent_ByteForByte(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	content := []byte("Port 22\nPermitRootLogin yes\n# unmanaged directive\nUseDNS no\n")

	for name, store := range stores(t) {
		snap, err := store.Save(ctx, "ssh", content)
		require.NoError(t, err, name)
		assert.Equal(t, "ssh", snap.Subsystem, name)
		assert.True(t, snap.Matches(content), name)

		got, err := store.Content(ctx, snap.ID)
		require.NoError(t, err, name)
		assert.Equal(t, content, got, name)
	}
}

func TestStore_Latest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for name, store := range stores(t) {
		_, err := store.Latest(ctx, "ssh")
		assert.ErrorIs(t, err, ErrNotFound, name)

		first, err := store.Save(ctx, "ssh", []byte("old"))
		require.NoError(t, err, name)
		_, err = store.Save(ctx, "firewall", []byte("rules"))
		require.NoError(t, err, name)

		latest, err := store.Latest(ctx, "ssh")
		require.NoError(t, err, name)
		assert.Equal(t, first.ID, latest.ID, name)
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for name, store := range stores(t) {
		snap, err := store.Save(ctx, "firewall", []byte("22/tcp"))
		require.NoError(t, err, name)

		require.NoError(t, store.Delete(ctx, snap.ID), name)

		_, err = store.Content(ctx, snap.ID)
		assert.ErrorIs(t, err, ErrNotFound, name)

		assert.ErrorIs(t, store.Delete(ctx, snap.ID), ErrNotFound, name)
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	content := []byte("Port 2222\n")

	snap, err := NewFileStore(dir).Save(ctx, "ssh", content)
	require.NoError(t, err)

	reopened := NewFileStore(dir)
	got, err := reopened.Content(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	latest, err := reopened.Latest(ctx, "ssh")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, latest.ID)
}

func TestSnapshot_MatchesDetectsDrift(t *testing.T) {
	t.Parallel()

	snap := New("ssh", []byte("Port 22\n"), time.Now())
	assert.True(t, snap.Matches([]byte("Port 22\n")))
	assert.False(t, snap.Matches([]byte("Port 2222\n")))
}
