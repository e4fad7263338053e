package kv

import (
	"sort"
	"sync"
)

// Store is the reference state machine: a deterministic in-memory mapping
// from string keys to string values. It implements raft.StateMachine over
// the tagged-variant codec in codec.go.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewStore creates an empty key-value store
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

// Apply executes an encoded command and returns the encoded response
func (s *Store) Apply(cmd []byte) ([]byte, error) {
	command, err := DecodeCommand(cmd)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch command.Op {
	case OpSet:
		s.data[command.Key] = command.Value
		return EncodeResponse(Response{Kind: RespAck}), nil
	case OpGet:
		value, found := s.data[command.Key]
		return EncodeResponse(Response{Kind: RespValue, Value: value, Found: found}), nil
	case OpDelete:
		delete(s.data, command.Key)
		return EncodeResponse(Response{Kind: RespAck}), nil
	}
	// DecodeCommand already rejects unknown tags
	return EncodeResponse(Response{Kind: RespAck}), nil
}

// Query serves a read-only Get without going through the log
func (s *Store) Query(req []byte) ([]byte, error) {
	command, err := DecodeCommand(req)
	if err != nil {
		return nil, err
	}
	if command.Op != OpGet {
		return nil, errReadOnly
	}

	s.mu.RLock()
	value, found := s.data[command.Key]
	s.mu.RUnlock()

	return EncodeResponse(Response{Kind: RespValue, Value: value, Found: found}), nil
}

// Get reads a key directly; a convenience for tests and local tooling
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, found := s.data[key]
	return value, found
}

// Len returns the number of stored keys
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Snapshot returns a self-contained serialization of the current mapping.
// Keys are emitted in sorted order so identical states produce identical
// snapshots.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, len(keys))
	for i, k := range keys {
		pairs[i] = [2]string{k, s.data[k]}
	}
	return encodeState(pairs), nil
}

// Restore replaces the current mapping with the deserialized snapshot state
func (s *Store) Restore(state []byte) error {
	pairs, err := decodeState(state)
	if err != nil {
		return err
	}

	data := make(map[string]string, len(pairs))
	for _, p := range pairs {
		data[p[0]] = p[1]
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}
