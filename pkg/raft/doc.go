/*
Package raft implements the leader-based consensus engine at the core of
Nexus: leader election, log replication with consistency checking, commit
advancement by majority, ordered application to a pluggable state machine,
and snapshot persistence with log compaction.

# Architecture

Each node is a single logical actor. Every input that can mutate node state
— timer ticks, inbound RPCs, RPC responses, client submissions — flows
through one event loop, so term, vote and log-tail invariants can never be
violated by interleaving:

	┌───────────────────────── RAFT NODE ──────────────────────────┐
	│                                                               │
	│   tick ──────┐                                                │
	│   inbound RPC ─┐                                              │
	│   RPC response ─┼──► event channel ──► run loop (single       │
	│   submit ──────┘                        goroutine, owns all   │
	│   query ───────┘                        mutable state)        │
	│                                           │                   │
	│          ┌────────────────────────────────┼──────────┐        │
	│          ▼                ▼               ▼          ▼        │
	│    Log (offset      StableStore     StateMachine  Snapshot    │
	│    slice, 1-based   (bbolt: term,   (apply loop   Store       │
	│    gap-free)        vote, entries)  only writer)  (file)      │
	│                                                               │
	│   outbound RPCs are dispatched on short-lived goroutines via  │
	│   the Transport; replies re-enter as events                   │
	└───────────────────────────────────────────────────────────────┘

Roles follow the Raft protocol: a follower whose election timer elapses
becomes a candidate at an incremented term; a candidate that gathers a
majority of grants becomes leader, appends a noop entry at its term, and
drives replication on every heartbeat tick. Any node observing a higher term
steps down to follower.

The leader tracks nextIndex and matchIndex per peer. Rejected AppendEntries
back the peer's nextIndex off one entry at a time until the consistency
check passes, after which the follower truncates its divergent suffix and
converges on the leader's log. The commit index only advances to an index
that is both majority-replicated and carried by a current-term entry;
earlier-term entries commit transitively.

# Persistence

Current term, vote and log entries write through a StableStore before the
node acts on them, and reload in NewNode. The snapshot workflow captures the
state machine at last-applied, saves it atomically through a SnapshotStore,
and compacts the log up to the snapshot boundary.

# Wire format

RPC messages and snapshot records use a compact binary codec: big-endian
fixed-width integers with u32-length-prefixed variable fields. Malformed
input surfaces as *DecodeError and drops the message; local invariant
violations (term regression, commit regression, truncating a committed
index) are programming errors and panic.

# Usage

	sm := kv.NewStore()
	stable, _ := storage.NewStateStore(dataDir)
	snaps, _ := raft.NewFileSnapshotStore(filepath.Join(dataDir, "snapshots"))

	node, err := raft.NewNode(raft.Config{
		ID:                "n1",
		Peers:             []string{"n2", "n3"},
		ElectionTimeout:   300 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
		SnapshotThreshold: 1024,
	}, sm, stable, snaps, transport)
	if err != nil {
		return err
	}
	node.Start()
	defer node.Stop()

	future, err := node.Submit(ctx, kv.EncodeCommand(kv.Command{Op: kv.OpSet, Key: "k", Value: "v"}))
	if err != nil {
		return err // ErrNotLeader: redirect the client
	}
	resp, err := future.Response(ctx)
*/
package raft
