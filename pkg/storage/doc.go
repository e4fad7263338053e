/*
Package storage provides BoltDB-backed persistence for the Raft node state
that must survive restarts: the current term, the vote, and the log entries.

Data lives in two buckets of a single database file:

	meta       current_term (u64 big-endian), voted_for (string)
	entries    index (u64 big-endian) -> wire-encoded log entry

Entry keys are big-endian so a bucket cursor walks the log in index order;
TruncateFrom and CompactTo delete suffix and prefix ranges with the same
cursor. StateStore implements raft.StableStore and the node writes through
it before acting on any change to its persistent state.
*/
package storage
