package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeAddress identifies one cluster member and where to reach it
type NodeAddress struct {
	Host   string `json:"host" yaml:"host"`
	Port   int    `json:"port" yaml:"port"`
	NodeID string `json:"node_id" yaml:"node_id"`
}

// Addr returns the host:port string for the node
func (n NodeAddress) Addr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// Cluster describes the static peer set and the consensus timing parameters
type Cluster struct {
	Nodes               []NodeAddress `json:"nodes" yaml:"nodes"`
	ReplicationFactor   int           `json:"replication_factor" yaml:"replication_factor"`
	ElectionTimeoutMs   uint64        `json:"election_timeout_ms" yaml:"election_timeout_ms"`
	HeartbeatIntervalMs uint64        `json:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms"`
}

// Load reads a cluster configuration file. JSON is the documented format;
// .yaml/.yml files are accepted as well.
func Load(path string) (*Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cluster Cluster
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cluster); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cluster); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cluster.Validate(); err != nil {
		return nil, err
	}
	return &cluster, nil
}

// Validate checks the structural invariants of a cluster configuration
func (c *Cluster) Validate() error {
	if len(c.Nodes) == 0 {
		return fmt.Errorf("config: cluster has no nodes")
	}

	seen := make(map[string]struct{}, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.NodeID == "" {
			return fmt.Errorf("config: node with address %s has no node_id", n.Addr())
		}
		if _, dup := seen[n.NodeID]; dup {
			return fmt.Errorf("config: duplicate node_id %q", n.NodeID)
		}
		seen[n.NodeID] = struct{}{}
		if n.Host == "" {
			return fmt.Errorf("config: node %s has no host", n.NodeID)
		}
		if n.Port <= 0 || n.Port > 65535 {
			return fmt.Errorf("config: node %s has invalid port %d", n.NodeID, n.Port)
		}
	}

	if c.ReplicationFactor != len(c.Nodes) {
		return fmt.Errorf("config: replication_factor %d must equal node count %d",
			c.ReplicationFactor, len(c.Nodes))
	}
	if c.ElectionTimeoutMs == 0 {
		return fmt.Errorf("config: election_timeout_ms must be positive")
	}
	if c.HeartbeatIntervalMs == 0 {
		return fmt.Errorf("config: heartbeat_interval_ms must be positive")
	}
	if c.HeartbeatIntervalMs >= c.ElectionTimeoutMs {
		return fmt.Errorf("config: heartbeat_interval_ms %d must be less than election_timeout_ms %d",
			c.HeartbeatIntervalMs, c.ElectionTimeoutMs)
	}
	return nil
}

// Node returns the address record for a node ID
func (c *Cluster) Node(id string) (NodeAddress, bool) {
	for _, n := range c.Nodes {
		if n.NodeID == id {
			return n, true
		}
	}
	return NodeAddress{}, false
}

// Peers returns every node ID except selfID
func (c *Cluster) Peers(selfID string) []string {
	peers := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.NodeID != selfID {
			peers = append(peers, n.NodeID)
		}
	}
	return peers
}

// ElectionTimeout returns the configured election timeout as a duration
func (c *Cluster) ElectionTimeout() time.Duration {
	return time.Duration(c.ElectionTimeoutMs) * time.Millisecond
}

// HeartbeatInterval returns the configured heartbeat interval as a duration
func (c *Cluster) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}
