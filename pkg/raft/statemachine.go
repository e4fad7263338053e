package raft

// StateMachine is the pluggable, deterministic application layer. Commands
// and responses cross the boundary as encoded bytes so the engine stays
// agnostic of the domain types; the reference implementation is the
// key-value store in pkg/kv.
//
// The apply loop is the only writer: identical sequences of applied commands
// on distinct nodes must yield identical state and identical responses.
type StateMachine interface {
	// Apply executes a committed command and returns its encoded response.
	// A malformed command returns a DecodeError; Apply must not fail
	// otherwise.
	Apply(cmd []byte) ([]byte, error)

	// Snapshot returns a self-contained serialization of current state
	Snapshot() ([]byte, error)

	// Restore replaces current state with the deserialized state. Malformed
	// input returns a DecodeError.
	Restore(state []byte) error

	// Query serves a read-only request and must not mutate state
	Query(req []byte) ([]byte, error)
}
