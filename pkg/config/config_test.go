package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadJSON tests the documented JSON configuration format
func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "cluster.json", `{
		"nodes": [
			{"host": "127.0.0.1", "port": 7101, "node_id": "n1"},
			{"host": "127.0.0.1", "port": 7102, "node_id": "n2"},
			{"host": "127.0.0.1", "port": 7103, "node_id": "n3"}
		],
		"replication_factor": 3,
		"election_timeout_ms": 300,
		"heartbeat_interval_ms": 50
	}`)

	cluster, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cluster.Nodes, 3)
	assert.Equal(t, 3, cluster.ReplicationFactor)
	assert.Equal(t, 300*time.Millisecond, cluster.ElectionTimeout())
	assert.Equal(t, 50*time.Millisecond, cluster.HeartbeatInterval())

	n2, ok := cluster.Node("n2")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:7102", n2.Addr())

	assert.ElementsMatch(t, []string{"n1", "n3"}, cluster.Peers("n2"))
}

// TestLoadYAML tests the YAML variant
func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cluster.yaml", `
nodes:
  - host: 10.0.0.1
    port: 7101
    node_id: n1
  - host: 10.0.0.2
    port: 7101
    node_id: n2
  - host: 10.0.0.3
    port: 7101
    node_id: n3
replication_factor: 3
election_timeout_ms: 150
heartbeat_interval_ms: 30
`)

	cluster, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cluster.Nodes, 3)
	assert.Equal(t, 150*time.Millisecond, cluster.ElectionTimeout())
}

// TestLoadMissingFile tests the read error path
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

// TestLoadMalformed tests the parse error path
func TestLoadMalformed(t *testing.T) {
	path := writeFile(t, "cluster.json", `{"nodes": [`)
	_, err := Load(path)
	assert.Error(t, err)
}

// TestValidate tests the structural invariants
func TestValidate(t *testing.T) {
	valid := func() Cluster {
		return Cluster{
			Nodes: []NodeAddress{
				{Host: "a", Port: 1, NodeID: "n1"},
				{Host: "b", Port: 2, NodeID: "n2"},
				{Host: "c", Port: 3, NodeID: "n3"},
			},
			ReplicationFactor:   3,
			ElectionTimeoutMs:   300,
			HeartbeatIntervalMs: 50,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Cluster)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Cluster) {},
		},
		{
			name:    "no nodes",
			mutate:  func(c *Cluster) { c.Nodes = nil },
			wantErr: "no nodes",
		},
		{
			name:    "duplicate node id",
			mutate:  func(c *Cluster) { c.Nodes[1].NodeID = "n1" },
			wantErr: "duplicate node_id",
		},
		{
			name:    "missing node id",
			mutate:  func(c *Cluster) { c.Nodes[0].NodeID = "" },
			wantErr: "no node_id",
		},
		{
			name:    "missing host",
			mutate:  func(c *Cluster) { c.Nodes[2].Host = "" },
			wantErr: "no host",
		},
		{
			name:    "bad port",
			mutate:  func(c *Cluster) { c.Nodes[0].Port = 70000 },
			wantErr: "invalid port",
		},
		{
			name:    "replication factor mismatch",
			mutate:  func(c *Cluster) { c.ReplicationFactor = 5 },
			wantErr: "replication_factor",
		},
		{
			name:    "zero election timeout",
			mutate:  func(c *Cluster) { c.ElectionTimeoutMs = 0 },
			wantErr: "election_timeout_ms",
		},
		{
			name:    "heartbeat not below election timeout",
			mutate:  func(c *Cluster) { c.HeartbeatIntervalMs = 300 },
			wantErr: "must be less than",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
