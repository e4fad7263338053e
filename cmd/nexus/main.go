package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/nexus/pkg/config"
	"github.com/cuemby/nexus/pkg/kv"
	"github.com/cuemby/nexus/pkg/log"
	"github.com/cuemby/nexus/pkg/metrics"
	"github.com/cuemby/nexus/pkg/raft"
	"github.com/cuemby/nexus/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Nexus - replicated key-value store on Raft consensus",
	Long: `Nexus replicates an ordered command log across a fixed set of peers
using the Raft protocol and applies committed commands to a deterministic
key-value state machine.

The server command runs the configured cluster in-process over a loopback
transport for development and testing; production deployments plug their own
transport into the engine.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Nexus version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	// Initialize logging before command execution
	cobra.OnInitialize(initLogging)

	// Add subcommands
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the configured cluster in-process",
	Long: `Start every node of the configured cluster in this process, connected
over the in-memory loopback transport. Node state is persisted under
<data-dir>/<node-id> and survives restarts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		snapshotThreshold, _ := cmd.Flags().GetUint64("snapshot-threshold")

		cluster, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logger := log.WithComponent("server")
		transport := raft.NewInmemTransport()

		var nodes []*raft.Node
		var stores []*storage.StateStore
		for _, addr := range cluster.Nodes {
			nodeDir := filepath.Join(dataDir, addr.NodeID)
			if err := os.MkdirAll(nodeDir, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}

			stable, err := storage.NewStateStore(nodeDir)
			if err != nil {
				return fmt.Errorf("node %s: %w", addr.NodeID, err)
			}
			stores = append(stores, stable)

			snapshots, err := raft.NewFileSnapshotStore(filepath.Join(nodeDir, "snapshots"))
			if err != nil {
				return fmt.Errorf("node %s: %w", addr.NodeID, err)
			}

			node, err := raft.NewNode(raft.Config{
				ID:                addr.NodeID,
				Peers:             cluster.Peers(addr.NodeID),
				ElectionTimeout:   cluster.ElectionTimeout(),
				HeartbeatInterval: cluster.HeartbeatInterval(),
				SnapshotThreshold: snapshotThreshold,
			}, kv.NewStore(), stable, snapshots, transport)
			if err != nil {
				return fmt.Errorf("node %s: %w", addr.NodeID, err)
			}

			transport.Register(node)
			nodes = append(nodes, node)
		}

		for _, node := range nodes {
			node.Start()
		}
		logger.Info().
			Int("nodes", len(nodes)).
			Str("config", configPath).
			Msg("cluster started")

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					logger.Error().Err(err).Msg("metrics server failed")
				}
			}()
			logger.Info().Str("addr", metricsAddr).Msg("serving metrics")
		}

		// Wait for shutdown signal
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")

		for _, node := range nodes {
			node.Stop()
		}
		for _, store := range stores {
			if err := store.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close state store")
			}
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect cluster configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a cluster configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cluster, err := config.Load(configPath)
		if err != nil {
			return err
		}

		fmt.Printf("Configuration OK\n")
		fmt.Printf("  Nodes: %d\n", len(cluster.Nodes))
		for _, n := range cluster.Nodes {
			fmt.Printf("    %s (%s)\n", n.NodeID, n.Addr())
		}
		fmt.Printf("  Election timeout: %s\n", cluster.ElectionTimeout())
		fmt.Printf("  Heartbeat interval: %s\n", cluster.HeartbeatInterval())
		return nil
	},
}

func init() {
	serverCmd.Flags().String("config", "cluster.json", "Cluster configuration file (JSON or YAML)")
	serverCmd.Flags().String("data-dir", "./data", "Directory for durable node state")
	serverCmd.Flags().String("metrics-addr", ":9100", "Prometheus metrics listen address (empty to disable)")
	serverCmd.Flags().Uint64("snapshot-threshold", 1024, "Applied entries retained before snapshotting (0 disables)")

	configValidateCmd.Flags().String("config", "cluster.json", "Cluster configuration file (JSON or YAML)")
	configCmd.AddCommand(configValidateCmd)
}
