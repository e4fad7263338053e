package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/nexus/pkg/raft"
)

var (
	// Bucket names
	bucketMeta    = []byte("meta")
	bucketEntries = []byte("entries")

	// Meta keys
	keyCurrentTerm = []byte("current_term")
	keyVotedFor    = []byte("voted_for")
)

// StateStore persists a node's hard state (current term, vote) and log
// entries in BoltDB. It implements raft.StableStore.
//
// Entry keys are big-endian encoded indexes so a bucket cursor walks the log
// in index order.
type StateStore struct {
	db *bolt.DB
}

// NewStateStore opens (or creates) the raft state database in dataDir
func NewStateStore(dataDir string) (*StateStore, error) {
	dbPath := filepath.Join(dataDir, "raft.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketMeta, bucketEntries} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &StateStore{db: db}, nil
}

// Close closes the database
func (s *StateStore) Close() error {
	return s.db.Close()
}

func indexKey(index uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], index)
	return key[:]
}

// SetHardState durably records the current term and vote
func (s *StateStore) SetHardState(term uint64, votedFor string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		var termBuf [8]byte
		binary.BigEndian.PutUint64(termBuf[:], term)
		if err := b.Put(keyCurrentTerm, termBuf[:]); err != nil {
			return err
		}
		return b.Put(keyVotedFor, []byte(votedFor))
	})
}

// HardState returns the recorded term and vote, or zero values for a fresh
// store
func (s *StateStore) HardState() (uint64, string, error) {
	var term uint64
	var votedFor string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if data := b.Get(keyCurrentTerm); data != nil {
			if len(data) != 8 {
				return fmt.Errorf("corrupt term record of %d bytes", len(data))
			}
			term = binary.BigEndian.Uint64(data)
		}
		if data := b.Get(keyVotedFor); data != nil {
			votedFor = string(data)
		}
		return nil
	})
	return term, votedFor, err
}

// AppendEntries durably stores log entries keyed by index
func (s *StateStore) AppendEntries(entries []raft.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		for _, entry := range entries {
			if err := b.Put(indexKey(entry.Index), raft.EncodeEntry(entry)); err != nil {
				return err
			}
		}
		return nil
	})
}

// TruncateFrom removes stored entries with index >= index
func (s *StateStore) TruncateFrom(index uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		for k, _ := c.Seek(indexKey(index)); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// CompactTo removes stored entries with index <= index (they are covered by
// a snapshot)
func (s *StateStore) CompactTo(index uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= index; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// Entries returns all stored entries in index order
func (s *StateStore) Entries() ([]raft.LogEntry, error) {
	var entries []raft.LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			entry, err := raft.DecodeEntry(v)
			if err != nil {
				return fmt.Errorf("corrupt entry at key %x: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
