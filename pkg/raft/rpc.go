package raft

// AppendEntriesRequest is sent by the leader to replicate log entries or,
// with an empty entry set, as a heartbeat
type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	LeaderCommit uint64
}

// AppendEntriesResponse is the follower's reply to an AppendEntries RPC
type AppendEntriesResponse struct {
	Term    uint64
	Success bool
}

// RequestVoteRequest is broadcast by a candidate at the start of an election
type RequestVoteRequest struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

// RequestVoteResponse is the peer's reply to a RequestVote RPC
type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}
