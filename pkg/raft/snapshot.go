package raft

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// RaftSnapshot is a durable, compacted representation of state machine state
// at a given log position. After installing it, the log's effective first
// index becomes LastIncludedIndex+1.
type RaftSnapshot struct {
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	State             []byte
}

// SnapshotStore persists and loads snapshot records
type SnapshotStore interface {
	// Save writes atomically: either the new snapshot is fully readable or
	// the previous one (if any) remains
	Save(snap *RaftSnapshot) error

	// Load returns the most recent snapshot, or nil if none has ever been
	// saved. Corrupt stored bytes yield a DecodeError.
	Load() (*RaftSnapshot, error)
}

const snapshotFileName = "snapshot.bin"

// FileSnapshotStore stores the snapshot as a single binary file in dir,
// written via a temp file and an atomic rename
type FileSnapshotStore struct {
	dir string
}

// NewFileSnapshotStore creates the snapshot directory if needed
func NewFileSnapshotStore(dir string) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSnapshotStore{dir: dir}, nil
}

func (s *FileSnapshotStore) path() string {
	return filepath.Join(s.dir, snapshotFileName)
}

// Save writes the snapshot record to a temp file, syncs it and renames it
// over the previous snapshot
func (s *FileSnapshotStore) Save(snap *RaftSnapshot) error {
	tmpPath := filepath.Join(s.dir, fmt.Sprintf("snapshot-%s.tmp", uuid.NewString()))

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}

	err = func() error {
		if _, err := f.Write(EncodeSnapshot(snap)); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("failed to sync snapshot: %w", err)
		}
		return f.Close()
	}()
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install snapshot: %w", err)
	}
	return nil
}

// Load reads the current snapshot file, if one exists
func (s *FileSnapshotStore) Load() (*RaftSnapshot, error) {
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}
