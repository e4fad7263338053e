package raft

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/nexus/pkg/log"
	"github.com/cuemby/nexus/pkg/metrics"
)

// Role is the consensus role of a node
type Role uint8

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// StableStore persists the state that must survive restarts: current term,
// vote, and the log. A nil store runs the node in-memory (tests and
// throwaway clusters only).
type StableStore interface {
	// SetHardState durably records the current term and vote
	SetHardState(term uint64, votedFor string) error

	// HardState returns the recorded term and vote (zero values when the
	// store is empty)
	HardState() (term uint64, votedFor string, err error)

	// AppendEntries durably appends log entries
	AppendEntries(entries []LogEntry) error

	// TruncateFrom removes stored entries with index >= index
	TruncateFrom(index uint64) error

	// CompactTo removes stored entries with index <= index
	CompactTo(index uint64) error

	// Entries returns all stored entries in index order
	Entries() ([]LogEntry, error)
}

// Config holds the static parameters of a node
type Config struct {
	// ID is this node's unique identifier within the cluster
	ID string

	// Peers lists every other node ID in the cluster (excluding self)
	Peers []string

	// ElectionTimeout is the lower bound of the randomized election timeout;
	// each election cycle draws from [ElectionTimeout, 2*ElectionTimeout)
	ElectionTimeout time.Duration

	// HeartbeatInterval is the leader's replication cadence. Must be
	// strictly less than ElectionTimeout.
	HeartbeatInterval time.Duration

	// SnapshotThreshold is the number of applied entries beyond the log's
	// oldest index that triggers a snapshot. 0 disables snapshotting.
	SnapshotThreshold uint64
}

func (c *Config) validate() error {
	if c.ID == "" {
		return fmt.Errorf("node ID is required")
	}
	if c.ElectionTimeout <= 0 {
		return fmt.Errorf("election timeout must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.HeartbeatInterval >= c.ElectionTimeout {
		return fmt.Errorf("heartbeat interval %v must be less than election timeout %v",
			c.HeartbeatInterval, c.ElectionTimeout)
	}
	return nil
}

// Status is a consistent snapshot of a node's observable state
type Status struct {
	ID          string
	Role        Role
	Term        uint64
	CommitIndex uint64
	LastApplied uint64
	LastIndex   uint64
	VotedFor    string
}

type applyResult struct {
	resp []byte
	err  error
}

// Future tracks a submitted command until it is applied or the submitting
// leader loses leadership
type Future struct {
	id    string
	index uint64
	term  uint64

	done chan struct{}
	res  applyResult
}

// Index returns the log index assigned to the command
func (f *Future) Index() uint64 {
	return f.index
}

// Response blocks until the command is applied and returns the state
// machine's encoded response
func (f *Future) Response(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.res.resp, f.res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(resp []byte, err error) {
	f.res = applyResult{resp: resp, err: err}
	close(f.done)
}

// Events consumed by the run loop. All node state mutations happen on that
// single goroutine.
type appendRPC struct {
	req    *AppendEntriesRequest
	respCh chan *AppendEntriesResponse
}

type voteRPC struct {
	req    *RequestVoteRequest
	respCh chan *RequestVoteResponse
}

type appendReply struct {
	peer string
	req  *AppendEntriesRequest
	resp *AppendEntriesResponse
}

type voteReply struct {
	peer string
	req  *RequestVoteRequest
	resp *RequestVoteResponse
}

type submitOp struct {
	cmd    []byte
	respCh chan submitResult
}

type submitResult struct {
	future *Future
	err    error
}

type queryOp struct {
	req    []byte
	respCh chan applyResult
}

type statusOp struct {
	respCh chan Status
}

type tickOp struct {
	now time.Time
}

// Node is the per-member consensus state machine: it owns the log, the
// durable term/vote state and the application state machine, and serializes
// every mutation through one event loop.
type Node struct {
	cfg    Config
	logger zerolog.Logger

	// Persistent state
	currentTerm uint64
	votedFor    string
	raftLog     *Log

	// Volatile state
	role            Role
	commitIndex     uint64
	lastApplied     uint64
	lastContact     time.Time
	electionTimeout time.Duration

	// Leader state
	nextIndex     map[string]uint64
	matchIndex    map[string]uint64
	votesReceived map[string]struct{}
	pending       map[uint64]*Future

	sm        StateMachine
	stable    StableStore
	snapshots SnapshotStore
	transport Transport

	eventCh    chan any
	shutdownCh chan struct{}
	doneCh     chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewNode restores a node from its durable state (snapshot, hard state, log)
// and leaves it stopped; call Start to begin consensus.
func NewNode(cfg Config, sm StateMachine, stable StableStore, snapshots SnapshotStore, transport Transport) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}
	if sm == nil {
		return nil, fmt.Errorf("state machine is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	n := &Node{
		cfg:           cfg,
		logger:        log.WithNodeID(cfg.ID),
		raftLog:       NewLog(),
		role:          Follower,
		nextIndex:     make(map[string]uint64),
		matchIndex:    make(map[string]uint64),
		votesReceived: make(map[string]struct{}),
		pending:       make(map[uint64]*Future),
		sm:            sm,
		stable:        stable,
		snapshots:     snapshots,
		transport:     transport,
		eventCh:       make(chan any, 256),
		shutdownCh:    make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	n.lastContact = time.Now()
	n.resetElectionTimeout()

	if snapshots != nil {
		snap, err := snapshots.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		if snap != nil {
			if err := sm.Restore(snap.State); err != nil {
				return nil, fmt.Errorf("failed to restore state machine: %w", err)
			}
			n.raftLog.CompactTo(snap.LastIncludedIndex, snap.LastIncludedTerm)
			n.commitIndex = snap.LastIncludedIndex
			n.lastApplied = snap.LastIncludedIndex
			n.logger.Info().
				Uint64("last_included_index", snap.LastIncludedIndex).
				Uint64("last_included_term", snap.LastIncludedTerm).
				Msg("restored state machine from snapshot")
		}
	}

	if stable != nil {
		term, votedFor, err := stable.HardState()
		if err != nil {
			return nil, fmt.Errorf("failed to load hard state: %w", err)
		}
		n.currentTerm = term
		n.votedFor = votedFor

		entries, err := stable.Entries()
		if err != nil {
			return nil, fmt.Errorf("failed to load log entries: %w", err)
		}
		for _, e := range entries {
			if e.Index <= n.raftLog.LastIndex() {
				continue // covered by the snapshot
			}
			if err := n.raftLog.Append(e); err != nil {
				return nil, fmt.Errorf("stored log is corrupt: %w", err)
			}
		}
	}

	return n, nil
}

// ID returns the node's identifier
func (n *Node) ID() string {
	return n.cfg.ID
}

// Start launches the event loop
func (n *Node) Start() {
	n.startOnce.Do(func() {
		go n.run()
	})
}

// Stop shuts the node down and waits for the event loop to exit
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.shutdownCh)
	})
	<-n.doneCh
}

func (n *Node) run() {
	defer close(n.doneCh)

	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()

	n.logger.Info().
		Uint64("term", n.currentTerm).
		Uint64("last_index", n.raftLog.LastIndex()).
		Int("peers", len(n.cfg.Peers)).
		Msg("raft node started")

	for {
		select {
		case <-n.shutdownCh:
			n.failPending(ErrShutdown)
			n.logger.Info().Msg("raft node stopped")
			return
		case now := <-ticker.C:
			n.processTick(now)
		case ev := <-n.eventCh:
			n.processEvent(ev)
		}
	}
}

func (n *Node) processEvent(ev any) {
	switch e := ev.(type) {
	case tickOp:
		n.processTick(e.now)
	case appendRPC:
		e.respCh <- n.processAppendEntries(e.req)
	case voteRPC:
		e.respCh <- n.processRequestVote(e.req)
	case appendReply:
		n.processAppendEntriesResponse(e.peer, e.req, e.resp)
	case voteReply:
		n.processVoteResponse(e.peer, e.req, e.resp)
	case submitOp:
		future, err := n.processSubmit(e.cmd)
		e.respCh <- submitResult{future: future, err: err}
	case queryOp:
		resp, err := n.sm.Query(e.req)
		e.respCh <- applyResult{resp: resp, err: err}
	case statusOp:
		e.respCh <- Status{
			ID:          n.cfg.ID,
			Role:        n.role,
			Term:        n.currentTerm,
			CommitIndex: n.commitIndex,
			LastApplied: n.lastApplied,
			LastIndex:   n.raftLog.LastIndex(),
			VotedFor:    n.votedFor,
		}
	default:
		n.logger.Error().Msgf("dropping unknown event %T", ev)
	}
}

// enqueue delivers an event to the run loop unless the node is shut down
func (n *Node) enqueue(ev any) error {
	select {
	case n.eventCh <- ev:
		return nil
	case <-n.shutdownCh:
		return ErrShutdown
	}
}

// HandleAppendEntries is the transport-facing entry point for AppendEntries
// RPCs; the request is serialized through the event loop
func (n *Node) HandleAppendEntries(ctx context.Context, req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
	respCh := make(chan *AppendEntriesResponse, 1)
	if err := n.enqueue(appendRPC{req: req, respCh: respCh}); err != nil {
		return nil, err
	}
	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.shutdownCh:
		return nil, ErrShutdown
	}
}

// HandleRequestVote is the transport-facing entry point for RequestVote RPCs
func (n *Node) HandleRequestVote(ctx context.Context, req *RequestVoteRequest) (*RequestVoteResponse, error) {
	respCh := make(chan *RequestVoteResponse, 1)
	if err := n.enqueue(voteRPC{req: req, respCh: respCh}); err != nil {
		return nil, err
	}
	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.shutdownCh:
		return nil, ErrShutdown
	}
}

// Submit appends a command to the leader's log and returns a future resolved
// when the command is applied. Non-leaders fail fast with ErrNotLeader.
func (n *Node) Submit(ctx context.Context, cmd []byte) (*Future, error) {
	respCh := make(chan submitResult, 1)
	if err := n.enqueue(submitOp{cmd: cmd, respCh: respCh}); err != nil {
		return nil, err
	}
	select {
	case res := <-respCh:
		return res.future, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.shutdownCh:
		return nil, ErrShutdown
	}
}

// Query serves a read-only state machine request. Reads are serialized
// through the event loop so they observe a consistent state; they do not go
// through the log.
func (n *Node) Query(ctx context.Context, req []byte) ([]byte, error) {
	respCh := make(chan applyResult, 1)
	if err := n.enqueue(queryOp{req: req, respCh: respCh}); err != nil {
		return nil, err
	}
	select {
	case res := <-respCh:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.shutdownCh:
		return nil, ErrShutdown
	}
}

// Status returns a consistent snapshot of the node's observable state
func (n *Node) Status(ctx context.Context) (Status, error) {
	respCh := make(chan Status, 1)
	if err := n.enqueue(statusOp{respCh: respCh}); err != nil {
		return Status{}, err
	}
	select {
	case s := <-respCh:
		return s, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-n.shutdownCh:
		return Status{}, ErrShutdown
	}
}

// Tick drives the node's timers once; exposed for deterministic harnesses
func (n *Node) Tick(now time.Time) error {
	return n.enqueue(tickOp{now: now})
}

// quorum is floor(N/2)+1 for the full cluster size including self
func (n *Node) quorum() int {
	return (len(n.cfg.Peers)+1)/2 + 1
}

func (n *Node) resetElectionTimeout() {
	n.electionTimeout = n.cfg.ElectionTimeout + rand.N(n.cfg.ElectionTimeout)
}

// persistHardState must complete before the term or vote is acted on; a node
// that cannot record them cannot safely vote or acknowledge.
func (n *Node) persistHardState() {
	if n.stable == nil {
		return
	}
	if err := n.stable.SetHardState(n.currentTerm, n.votedFor); err != nil {
		panic(fmt.Sprintf("raft: cannot persist hard state: %v", err))
	}
}

func (n *Node) persistAppend(entries []LogEntry) {
	if n.stable == nil || len(entries) == 0 {
		return
	}
	if err := n.stable.AppendEntries(entries); err != nil {
		panic(fmt.Sprintf("raft: cannot persist log entries: %v", err))
	}
}

func (n *Node) persistTruncate(index uint64) {
	if n.stable == nil {
		return
	}
	if err := n.stable.TruncateFrom(index); err != nil {
		panic(fmt.Sprintf("raft: cannot truncate stored log: %v", err))
	}
}

// processTick advances timers: leaders replicate, everyone else checks the
// election timeout. Snapshot pressure is evaluated on every tick.
func (n *Node) processTick(now time.Time) {
	if n.role == Leader {
		n.broadcastAppendEntries()
	} else if now.Sub(n.lastContact) >= n.electionTimeout {
		n.startElection(now)
	}
	n.maybeSnapshot()
}

// startElection transitions to candidate for the next term and solicits
// votes from every peer
func (n *Node) startElection(now time.Time) {
	n.role = Candidate
	n.currentTerm++
	n.votedFor = n.cfg.ID
	n.persistHardState()

	n.votesReceived = map[string]struct{}{n.cfg.ID: {}}
	n.lastContact = now
	n.resetElectionTimeout()

	metrics.RaftElectionsStarted.Inc()
	metrics.RaftCurrentTerm.Set(float64(n.currentTerm))
	n.logger.Info().Uint64("term", n.currentTerm).Msg("election timeout elapsed, starting election")

	if len(n.votesReceived) >= n.quorum() {
		// Single-node cluster wins immediately
		n.becomeLeader()
		return
	}

	req := &RequestVoteRequest{
		Term:         n.currentTerm,
		CandidateID:  n.cfg.ID,
		LastLogIndex: n.raftLog.LastIndex(),
		LastLogTerm:  n.raftLog.LastTerm(),
	}
	for _, peer := range n.cfg.Peers {
		go n.dispatchRequestVote(peer, req)
	}
}

func (n *Node) dispatchRequestVote(peer string, req *RequestVoteRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.HeartbeatInterval)
	defer cancel()

	resp, err := n.transport.SendRequestVote(ctx, peer, req)
	if err != nil {
		// Transient: no state change, the next election timeout retries
		n.logger.Debug().Err(err).Str("peer", peer).Msg("request vote failed")
		return
	}
	_ = n.enqueue(voteReply{peer: peer, req: req, resp: resp})
}

// processRequestVote applies the voting rules from the peer's side
func (n *Node) processRequestVote(req *RequestVoteRequest) *RequestVoteResponse {
	if req.Term < n.currentTerm {
		return &RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}
	}
	if req.Term > n.currentTerm {
		n.stepDown(req.Term)
	}

	upToDate := req.LastLogTerm > n.raftLog.LastTerm() ||
		(req.LastLogTerm == n.raftLog.LastTerm() && req.LastLogIndex >= n.raftLog.LastIndex())

	if (n.votedFor == "" || n.votedFor == req.CandidateID) && upToDate {
		n.votedFor = req.CandidateID
		n.persistHardState()
		n.lastContact = time.Now()
		n.logger.Info().
			Str("candidate", req.CandidateID).
			Uint64("term", n.currentTerm).
			Msg("granted vote")
		return &RequestVoteResponse{Term: n.currentTerm, VoteGranted: true}
	}

	return &RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}
}

// processVoteResponse tallies grants for the current candidacy only
func (n *Node) processVoteResponse(peer string, req *RequestVoteRequest, resp *RequestVoteResponse) {
	if resp.Term > n.currentTerm {
		n.stepDown(resp.Term)
		return
	}
	if n.role != Candidate || req.Term != n.currentTerm || resp.Term != n.currentTerm {
		return // stale candidacy
	}
	if !resp.VoteGranted {
		return
	}

	n.votesReceived[peer] = struct{}{}
	if len(n.votesReceived) >= n.quorum() {
		n.becomeLeader()
	}
}

// becomeLeader initializes replication state, appends the leadership noop
// and immediately broadcasts
func (n *Node) becomeLeader() {
	n.role = Leader
	n.lastContact = time.Now()
	for _, peer := range n.cfg.Peers {
		n.nextIndex[peer] = n.raftLog.LastIndex() + 1
		n.matchIndex[peer] = 0
	}

	noop := LogEntry{
		Term:  n.currentTerm,
		Index: n.raftLog.LastIndex() + 1,
		Kind:  EntryNoop,
	}
	if err := n.raftLog.Append(noop); err != nil {
		panic(fmt.Sprintf("raft: leader noop append failed: %v", err))
	}
	n.persistAppend([]LogEntry{noop})

	metrics.RaftIsLeader.Set(1)
	metrics.RaftLogLastIndex.Set(float64(n.raftLog.LastIndex()))
	n.logger.Info().
		Uint64("term", n.currentTerm).
		Uint64("noop_index", noop.Index).
		Msg("won election, became leader")

	n.advanceCommitIndex()
	n.broadcastAppendEntries()
}

// stepDown returns to follower. A strictly higher term clears the vote; a
// same-term step-down (candidate observing the elected leader) keeps it.
func (n *Node) stepDown(term uint64) {
	if term < n.currentTerm {
		panic(fmt.Sprintf("raft: term regression from %d to %d", n.currentTerm, term))
	}
	wasLeader := n.role == Leader

	if term > n.currentTerm {
		n.currentTerm = term
		n.votedFor = ""
		n.persistHardState()
	}
	n.role = Follower
	n.votesReceived = make(map[string]struct{})
	n.lastContact = time.Now()
	n.resetElectionTimeout()

	metrics.RaftIsLeader.Set(0)
	metrics.RaftCurrentTerm.Set(float64(n.currentTerm))

	if wasLeader {
		n.failPending(ErrLeadershipLost)
		n.logger.Info().Uint64("term", n.currentTerm).Msg("stepped down from leadership")
	}
}

// failPending resolves every outstanding submission future with err. The
// commands may or may not still commit under a later leader.
func (n *Node) failPending(err error) {
	for index, f := range n.pending {
		f.resolve(nil, err)
		delete(n.pending, index)
	}
}

// broadcastAppendEntries sends each peer its tailored request (heartbeat
// when the peer is caught up)
func (n *Node) broadcastAppendEntries() {
	for _, peer := range n.cfg.Peers {
		n.replicateTo(peer)
	}
	metrics.RaftHeartbeatsSent.Inc()
}

// appendRequestFor builds the peer's tailored replication request from its
// next index
func (n *Node) appendRequestFor(peer string) *AppendEntriesRequest {
	nextIdx := n.nextIndex[peer]
	if nextIdx < n.raftLog.FirstIndex() {
		// The peer needs entries that were compacted into the snapshot;
		// clamp and let it rejoin from the oldest retained entry.
		n.logger.Warn().
			Str("peer", peer).
			Uint64("next_index", nextIdx).
			Uint64("first_index", n.raftLog.FirstIndex()).
			Msg("peer lags behind compacted log")
		nextIdx = n.raftLog.FirstIndex()
		n.nextIndex[peer] = nextIdx
	}

	prevIndex := nextIdx - 1
	return &AppendEntriesRequest{
		Term:         n.currentTerm,
		LeaderID:     n.cfg.ID,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  n.raftLog.Term(prevIndex),
		Entries:      n.raftLog.Suffix(nextIdx),
		LeaderCommit: n.commitIndex,
	}
}

func (n *Node) replicateTo(peer string) {
	go n.dispatchAppendEntries(peer, n.appendRequestFor(peer))
}

func (n *Node) dispatchAppendEntries(peer string, req *AppendEntriesRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.HeartbeatInterval)
	defer cancel()

	resp, err := n.transport.SendAppendEntries(ctx, peer, req)
	if err != nil {
		// Transient: no state change, the next tick retries
		n.logger.Debug().Err(err).Str("peer", peer).Msg("append entries failed")
		return
	}
	_ = n.enqueue(appendReply{peer: peer, req: req, resp: resp})
}

// processAppendEntries applies the follower-side replication rules
func (n *Node) processAppendEntries(req *AppendEntriesRequest) *AppendEntriesResponse {
	reject := &AppendEntriesResponse{Term: n.currentTerm, Success: false}

	// 1. An older term is rejected outright
	if req.Term < n.currentTerm {
		metrics.RaftAppendRejections.Inc()
		return reject
	}

	// 2-3. A newer term, or a same-term append while campaigning, means a
	// legitimate leader exists for this term
	if req.Term > n.currentTerm || n.role != Follower {
		n.stepDown(req.Term)
		reject.Term = n.currentTerm
	}

	// 4. Consistency check on the entry preceding the batch
	if req.PrevLogIndex > 0 {
		localTerm := n.raftLog.Term(req.PrevLogIndex)
		if localTerm != req.PrevLogTerm {
			metrics.RaftAppendRejections.Inc()
			n.logger.Debug().
				Uint64("prev_log_index", req.PrevLogIndex).
				Uint64("prev_log_term", req.PrevLogTerm).
				Uint64("local_term", localTerm).
				Msg("log consistency check failed")
			return reject
		}
	}

	// The prev-log check passed: this is the current-term leader
	n.lastContact = time.Now()

	// 5. Reconcile the batch entry by entry
	for i, entry := range req.Entries {
		if entry.Index < n.raftLog.FirstIndex() {
			continue // already compacted into the snapshot
		}
		local := n.raftLog.Get(entry.Index)
		if local != nil && local.Term == entry.Term {
			continue
		}
		if local != nil {
			if entry.Index <= n.commitIndex {
				panic(fmt.Sprintf("raft: conflicting entry at committed index %d (commit index %d)",
					entry.Index, n.commitIndex))
			}
			n.raftLog.TruncateFrom(entry.Index)
			n.persistTruncate(entry.Index)
		}
		for _, e := range req.Entries[i:] {
			if err := n.raftLog.Append(e); err != nil {
				panic(fmt.Sprintf("raft: follower append failed: %v", err))
			}
		}
		n.persistAppend(req.Entries[i:])
		break
	}
	metrics.RaftLogLastIndex.Set(float64(n.raftLog.LastIndex()))

	// 6. Adopt the leader's commit index up to the last index this request
	// confirmed matching
	if req.LeaderCommit > n.commitIndex {
		lastNew := req.PrevLogIndex + uint64(len(req.Entries))
		n.setCommitIndex(min(req.LeaderCommit, lastNew))
		n.applyCommitted()
	}

	return &AppendEntriesResponse{Term: n.currentTerm, Success: true}
}

// processAppendEntriesResponse applies the leader-side replication rules
func (n *Node) processAppendEntriesResponse(peer string, req *AppendEntriesRequest, resp *AppendEntriesResponse) {
	if resp.Term > n.currentTerm {
		n.stepDown(resp.Term)
		return
	}
	if n.role != Leader || req.Term != n.currentTerm {
		return // stale response from an earlier leadership
	}

	if resp.Success {
		reported := req.PrevLogIndex + uint64(len(req.Entries))
		// Monotonic: a reordered stale success must not move match backwards
		if reported > n.matchIndex[peer] {
			n.matchIndex[peer] = reported
		}
		n.nextIndex[peer] = n.matchIndex[peer] + 1
		n.advanceCommitIndex()

		if n.nextIndex[peer] <= n.raftLog.LastIndex() {
			n.replicateTo(peer) // keep catching the peer up
		}
		return
	}

	// Consistency rejection: back off one entry and retry on the next tick
	if n.nextIndex[peer] > 1 {
		n.nextIndex[peer]--
	}
}

// advanceCommitIndex finds the largest majority-replicated index whose entry
// is from the current term. Prior-term entries commit only transitively.
func (n *Node) advanceCommitIndex() {
	for candidate := n.raftLog.LastIndex(); candidate > n.commitIndex; candidate-- {
		count := 1 // self, via last index
		for _, peer := range n.cfg.Peers {
			if n.matchIndex[peer] >= candidate {
				count++
			}
		}
		if count >= n.quorum() && n.raftLog.Term(candidate) == n.currentTerm {
			n.setCommitIndex(candidate)
			n.applyCommitted()
			return
		}
	}
}

func (n *Node) setCommitIndex(index uint64) {
	if index < n.commitIndex {
		panic(fmt.Sprintf("raft: commit index regression from %d to %d", n.commitIndex, index))
	}
	n.commitIndex = index
	metrics.RaftCommitIndex.Set(float64(index))
}

// applyCommitted advances lastApplied up to commitIndex, handing committed
// commands to the state machine in order. A command payload the state
// machine cannot decode is logged and skipped; lastApplied still advances so
// the node keeps pace with the cluster.
func (n *Node) applyCommitted() {
	for n.lastApplied < n.commitIndex {
		next := n.lastApplied + 1
		entry := n.raftLog.Get(next)
		if entry == nil {
			panic(fmt.Sprintf("raft: committed entry %d missing from log (commit index %d)",
				next, n.commitIndex))
		}

		var res applyResult
		switch entry.Kind {
		case EntryCommand:
			timer := metrics.NewTimer()
			resp, err := n.sm.Apply(entry.Payload)
			timer.ObserveDuration(metrics.RaftApplyDuration)
			if err != nil {
				metrics.RaftApplyFailures.Inc()
				n.logger.Error().Err(err).Uint64("index", next).Msg("failed to apply command")
			} else {
				metrics.RaftCommandsApplied.Inc()
			}
			res = applyResult{resp: resp, err: err}
		case EntryNoop, EntryConfiguration:
			// Nothing for the state machine
		}

		n.lastApplied = next
		metrics.RaftAppliedIndex.Set(float64(next))

		if f, ok := n.pending[next]; ok {
			delete(n.pending, next)
			if f.term == entry.Term {
				f.resolve(res.resp, res.err)
			} else {
				// The slot was overwritten by another leader's entry
				f.resolve(nil, ErrLeadershipLost)
			}
		}
	}
}

// processSubmit appends a client command on the leader and starts
// replicating it
func (n *Node) processSubmit(cmd []byte) (*Future, error) {
	if n.role != Leader {
		return nil, ErrNotLeader
	}

	entry := LogEntry{
		Term:    n.currentTerm,
		Index:   n.raftLog.LastIndex() + 1,
		Kind:    EntryCommand,
		Payload: cmd,
	}
	if err := n.raftLog.Append(entry); err != nil {
		panic(fmt.Sprintf("raft: leader append failed: %v", err))
	}
	n.persistAppend([]LogEntry{entry})
	metrics.RaftLogLastIndex.Set(float64(entry.Index))

	f := &Future{
		id:    uuid.NewString(),
		index: entry.Index,
		term:  entry.Term,
		done:  make(chan struct{}),
	}
	n.pending[entry.Index] = f

	n.logger.Debug().
		Str("submission_id", f.id).
		Uint64("index", entry.Index).
		Uint64("term", entry.Term).
		Msg("accepted command")

	// A single-node cluster commits on its own log alone
	n.advanceCommitIndex()
	n.broadcastAppendEntries()
	return f, nil
}

// maybeSnapshot captures and persists a snapshot once enough applied entries
// have accumulated past the log's oldest index, then compacts the log
func (n *Node) maybeSnapshot() {
	if n.snapshots == nil || n.cfg.SnapshotThreshold == 0 {
		return
	}
	if n.lastApplied < n.raftLog.FirstIndex() {
		return
	}
	if n.lastApplied-n.raftLog.FirstIndex()+1 < n.cfg.SnapshotThreshold {
		return
	}

	term := n.raftLog.Term(n.lastApplied)
	timer := metrics.NewTimer()
	state, err := n.sm.Snapshot()
	if err != nil {
		n.logger.Error().Err(err).Msg("state machine snapshot failed")
		return
	}

	snap := &RaftSnapshot{
		LastIncludedIndex: n.lastApplied,
		LastIncludedTerm:  term,
		State:             state,
	}
	// The durable save must land before the log entries it replaces go away
	if err := n.snapshots.Save(snap); err != nil {
		n.logger.Error().Err(err).Msg("snapshot save failed, will retry")
		return
	}

	n.raftLog.CompactTo(snap.LastIncludedIndex, snap.LastIncludedTerm)
	if n.stable != nil {
		if err := n.stable.CompactTo(snap.LastIncludedIndex); err != nil {
			n.logger.Error().Err(err).Msg("stored log compaction failed")
		}
	}
	timer.ObserveDuration(metrics.RaftSnapshotDuration)
	metrics.RaftSnapshotsTaken.Inc()

	n.logger.Info().
		Uint64("last_included_index", snap.LastIncludedIndex).
		Uint64("last_included_term", snap.LastIncludedTerm).
		Msg("snapshot taken, log compacted")
}
