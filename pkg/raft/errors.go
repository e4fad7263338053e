package raft

import "errors"

var (
	// ErrNotLeader is returned when a command is submitted to a node that is
	// not the current leader
	ErrNotLeader = errors.New("node is not the leader")

	// ErrLeadershipLost is returned for a submitted command whose leader
	// stepped down before the command committed. The command may or may not
	// be applied; clients must retry with idempotency keys.
	ErrLeadershipLost = errors.New("leadership lost before commit")

	// ErrShutdown is returned when the node has been stopped
	ErrShutdown = errors.New("raft node is shut down")
)
