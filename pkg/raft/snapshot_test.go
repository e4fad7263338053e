package raft

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFileSnapshotStoreRoundTrip tests that a saved record reloads
// identically
func TestFileSnapshotStoreRoundTrip(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	snap := &RaftSnapshot{
		LastIncludedIndex: 42,
		LastIncludedTerm:  3,
		State:             []byte("serialized state machine"),
	}
	require.NoError(t, store.Save(snap))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap, loaded)
}

// TestFileSnapshotStoreLoadEmpty tests that a store with no history returns
// nil without error
func TestFileSnapshotStoreLoadEmpty(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

// TestFileSnapshotStoreOverwrite tests that a newer save replaces the
// previous record
func TestFileSnapshotStoreOverwrite(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(&RaftSnapshot{LastIncludedIndex: 10, LastIncludedTerm: 1, State: []byte("old")}))
	require.NoError(t, store.Save(&RaftSnapshot{LastIncludedIndex: 20, LastIncludedTerm: 2, State: []byte("new")}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(20), loaded.LastIncludedIndex)
	assert.Equal(t, []byte("new"), loaded.State)
}

// TestFileSnapshotStoreCorrupt tests that truncated stored bytes surface a
// DecodeError
func TestFileSnapshotStoreCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot.bin"), []byte{0x01, 0x02}, 0600))

	_, err = store.Load()
	require.Error(t, err)
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

// TestFileSnapshotStoreNoTempLeftBehind tests that a completed save leaves
// only the installed snapshot file
func TestFileSnapshotStoreNoTempLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(&RaftSnapshot{LastIncludedIndex: 1, LastIncludedTerm: 1, State: []byte("s")}))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "snapshot.bin", files[0].Name())
}
