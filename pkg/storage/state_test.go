package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nexus/pkg/raft"
)

func openStore(t *testing.T, dir string) *StateStore {
	t.Helper()
	store, err := NewStateStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestHardStateRoundTrip tests term and vote persistence across reopen
func TestHardStateRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store := openStore(t, dir)
	term, votedFor, err := store.HardState()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), term)
	assert.Equal(t, "", votedFor)

	require.NoError(t, store.SetHardState(7, "n2"))
	require.NoError(t, store.Close())

	reopened := openStore(t, dir)
	term, votedFor, err = reopened.HardState()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), term)
	assert.Equal(t, "n2", votedFor)
}

// TestEntriesRoundTrip tests durable log entries reload in index order
func TestEntriesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)

	entries := []raft.LogEntry{
		{Term: 1, Index: 1, Kind: raft.EntryNoop},
		{Term: 1, Index: 2, Kind: raft.EntryCommand, Payload: []byte("set a=1")},
		{Term: 2, Index: 3, Kind: raft.EntryCommand, Payload: []byte("set b=2")},
	}
	require.NoError(t, store.AppendEntries(entries))
	require.NoError(t, store.Close())

	reopened := openStore(t, dir)
	loaded, err := reopened.Entries()
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)
}

// TestTruncateFrom tests suffix deletion during consistency repair
func TestTruncateFrom(t *testing.T) {
	store := openStore(t, t.TempDir())

	var entries []raft.LogEntry
	for i := uint64(1); i <= 5; i++ {
		entries = append(entries, raft.LogEntry{Term: 1, Index: i, Kind: raft.EntryCommand})
	}
	require.NoError(t, store.AppendEntries(entries))

	require.NoError(t, store.TruncateFrom(3))

	loaded, err := store.Entries()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, uint64(2), loaded[1].Index)
}

// TestCompactTo tests prefix deletion after a snapshot
func TestCompactTo(t *testing.T) {
	store := openStore(t, t.TempDir())

	var entries []raft.LogEntry
	for i := uint64(1); i <= 5; i++ {
		entries = append(entries, raft.LogEntry{Term: 1, Index: i, Kind: raft.EntryCommand})
	}
	require.NoError(t, store.AppendEntries(entries))

	require.NoError(t, store.CompactTo(3))

	loaded, err := store.Entries()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, uint64(4), loaded[0].Index)
	assert.Equal(t, uint64(5), loaded[1].Index)
}

// TestOverwriteEntry tests that re-appending an index replaces the record
func TestOverwriteEntry(t *testing.T) {
	store := openStore(t, t.TempDir())

	require.NoError(t, store.AppendEntries([]raft.LogEntry{
		{Term: 1, Index: 1, Kind: raft.EntryCommand, Payload: []byte("old")},
	}))
	require.NoError(t, store.AppendEntries([]raft.LogEntry{
		{Term: 2, Index: 1, Kind: raft.EntryCommand, Payload: []byte("new")},
	}))

	loaded, err := store.Entries()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, uint64(2), loaded[0].Term)
	assert.Equal(t, []byte("new"), loaded[0].Payload)
}
