/*
Package config loads and validates the static cluster configuration: the
fixed peer set and the consensus timing parameters.

The documented format is JSON; files ending in .yaml/.yml are parsed as
YAML with the same schema:

	{
	  "nodes": [
	    {"host": "127.0.0.1", "port": 7101, "node_id": "n1"},
	    {"host": "127.0.0.1", "port": 7102, "node_id": "n2"},
	    {"host": "127.0.0.1", "port": 7103, "node_id": "n3"}
	  ],
	  "replication_factor": 3,
	  "election_timeout_ms": 300,
	  "heartbeat_interval_ms": 50
	}

Validation enforces a non-empty peer set with unique IDs, a replication
factor equal to the node count, and a heartbeat interval strictly below the
election timeout.
*/
package config
