package raft

import (
	"context"
	"fmt"
	"sync"
)

// Transport delivers RPCs to named peers and returns their replies. The
// engine assumes at-least-once best-effort delivery and treats duplicates
// and reorderings as benign; a timeout or unreachable peer is transient and
// causes no state change.
//
// Production transports live outside the engine. The in-memory loopback
// below backs tests and the in-process development cluster.
type Transport interface {
	SendAppendEntries(ctx context.Context, peerID string, req *AppendEntriesRequest) (*AppendEntriesResponse, error)
	SendRequestVote(ctx context.Context, peerID string, req *RequestVoteRequest) (*RequestVoteResponse, error)
}

// InmemTransport routes RPCs between nodes registered in the same process.
// Every message round-trips through the wire codec so the loopback exercises
// the same encoding as a networked transport would.
type InmemTransport struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewInmemTransport creates an empty loopback registry
func NewInmemTransport() *InmemTransport {
	return &InmemTransport{nodes: make(map[string]*Node)}
}

// Register makes a node reachable under its ID
func (t *InmemTransport) Register(n *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[n.ID()] = n
}

// Deregister removes a node from the registry, simulating an unreachable peer
func (t *InmemTransport) Deregister(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, id)
}

func (t *InmemTransport) lookup(peerID string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[peerID]
	if !ok {
		return nil, fmt.Errorf("peer unreachable: %s", peerID)
	}
	return n, nil
}

// SendAppendEntries delivers an AppendEntries RPC to a registered peer
func (t *InmemTransport) SendAppendEntries(ctx context.Context, peerID string, req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
	peer, err := t.lookup(peerID)
	if err != nil {
		return nil, err
	}
	decoded, err := DecodeAppendEntriesRequest(EncodeAppendEntriesRequest(req))
	if err != nil {
		return nil, err
	}
	resp, err := peer.HandleAppendEntries(ctx, decoded)
	if err != nil {
		return nil, err
	}
	return DecodeAppendEntriesResponse(EncodeAppendEntriesResponse(resp))
}

// SendRequestVote delivers a RequestVote RPC to a registered peer
func (t *InmemTransport) SendRequestVote(ctx context.Context, peerID string, req *RequestVoteRequest) (*RequestVoteResponse, error) {
	peer, err := t.lookup(peerID)
	if err != nil {
		return nil, err
	}
	decoded, err := DecodeRequestVoteRequest(EncodeRequestVoteRequest(req))
	if err != nil {
		return nil, err
	}
	resp, err := peer.HandleRequestVote(ctx, decoded)
	if err != nil {
		return nil, err
	}
	return DecodeRequestVoteResponse(EncodeRequestVoteResponse(resp))
}
