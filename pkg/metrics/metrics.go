package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Consensus state metrics
	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = otherwise)",
		},
	)

	RaftCurrentTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_raft_current_term",
			Help: "Current Raft term observed by this node",
		},
	)

	RaftCommitIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_raft_commit_index",
			Help: "Highest log index known committed on a majority",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_raft_applied_index",
			Help: "Last log index applied to the state machine",
		},
	)

	RaftLogLastIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_raft_log_last_index",
			Help: "Index of the last entry in the local log",
		},
	)

	// Protocol activity metrics
	RaftElectionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_raft_elections_started_total",
			Help: "Total number of elections this node has started",
		},
	)

	RaftHeartbeatsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_raft_heartbeats_sent_total",
			Help: "Total number of leader replication broadcasts",
		},
	)

	RaftAppendRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_raft_append_rejections_total",
			Help: "Total number of AppendEntries requests this node rejected",
		},
	)

	// Apply loop metrics
	RaftCommandsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_raft_commands_applied_total",
			Help: "Total number of commands applied to the state machine",
		},
	)

	RaftApplyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_raft_apply_failures_total",
			Help: "Total number of committed commands that failed to apply (e.g. undecodable payloads)",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nexus_raft_apply_duration_seconds",
			Help:    "Time taken to apply a log entry to the state machine in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Snapshot metrics
	RaftSnapshotsTaken = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_raft_snapshots_taken_total",
			Help: "Total number of snapshots captured and persisted",
		},
	)

	RaftSnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nexus_raft_snapshot_duration_seconds",
			Help:    "Time taken to capture, persist and compact a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RaftIsLeader)
	prometheus.MustRegister(RaftCurrentTerm)
	prometheus.MustRegister(RaftCommitIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(RaftLogLastIndex)
	prometheus.MustRegister(RaftElectionsStarted)
	prometheus.MustRegister(RaftHeartbeatsSent)
	prometheus.MustRegister(RaftAppendRejections)
	prometheus.MustRegister(RaftCommandsApplied)
	prometheus.MustRegister(RaftApplyFailures)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(RaftSnapshotsTaken)
	prometheus.MustRegister(RaftSnapshotDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
