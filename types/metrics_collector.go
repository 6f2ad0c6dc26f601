package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	HeartbeatMetrics
	ConnectMetrics
	ReplicationMetrics
	BeaconMetrics
}

// HeartbeatMetrics defines metrics for the heartbeat scheduler.
type HeartbeatMetrics interface {
	// RecordStatusTransition records a scheduler status transition event.
	RecordStatusTransition(from, to Status)

	// RecordRunDuration records the wall-clock time of one heartbeat run.
	//
	// Parameters:
	//   - duration: Time taken in seconds
	//   - aborted: true if the run stopped early due to cancellation
	RecordRunDuration(duration float64, aborted bool)

	// RecordSkippedTick records a timer tick that fired while a run was
	// still in flight and was therefore skipped.
	RecordSkippedTick()
}

// ConnectMetrics defines metrics for peer connection attempts.
type ConnectMetrics interface {
	// RecordConnectAttempt records one reconnect attempt made by a heartbeat run.
	//
	// Parameters:
	//   - database: Database the server belongs to
	//   - server: Target server name
	//   - success: true if the connection was established
	RecordConnectAttempt(database, server string, success bool)

	// RecordConnectedPeers sets the current number of connected peers for a
	// database (gauge metric).
	RecordConnectedPeers(database string, count int)
}

// ReplicationMetrics defines metrics for the replication flusher.
type ReplicationMetrics interface {
	// RecordReplicationFlush records one drained replication package.
	//
	// Parameters:
	//   - database: Database being replicated
	//   - success: true if the package was accepted by the replica
	RecordReplicationFlush(database string, success bool)

	// RecordReplicationQueueDepth sets the current replication queue depth
	// for a database (gauge metric).
	RecordReplicationQueueDepth(database string, depth int)
}

// BeaconMetrics defines metrics for the node liveness beacon.
type BeaconMetrics interface {
	// RecordBeacon records a liveness beacon publish from this node.
	//
	// Parameters:
	//   - node: Node ID publishing the beacon
	//   - success: true if the beacon was successfully published
	RecordBeacon(node string, success bool)
}
