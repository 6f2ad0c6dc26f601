// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/wang-shun/siridb-server/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// HeartbeatMetrics implementation

// RecordStatusTransition discards the status transition metric.
func (n *NopMetrics) RecordStatusTransition(_ /* from */, _ /* to */ types.Status) {
	// No-op
}

// RecordRunDuration discards the run duration metric.
func (n *NopMetrics) RecordRunDuration(_ /* duration */ float64, _ /* aborted */ bool) {
	// No-op
}

// RecordSkippedTick discards the skipped tick metric.
func (n *NopMetrics) RecordSkippedTick() {
	// No-op
}

// ConnectMetrics implementation

// RecordConnectAttempt discards the connect attempt metric.
func (n *NopMetrics) RecordConnectAttempt(_ /* database */, _ /* server */ string, _ /* success */ bool) {
	// No-op
}

// RecordConnectedPeers discards the connected peers gauge.
func (n *NopMetrics) RecordConnectedPeers(_ /* database */ string, _ /* count */ int) {
	// No-op
}

// ReplicationMetrics implementation

// RecordReplicationFlush discards the replication flush metric.
func (n *NopMetrics) RecordReplicationFlush(_ /* database */ string, _ /* success */ bool) {
	// No-op
}

// RecordReplicationQueueDepth discards the replication queue depth gauge.
func (n *NopMetrics) RecordReplicationQueueDepth(_ /* database */ string, _ /* depth */ int) {
	// No-op
}

// BeaconMetrics implementation

// RecordBeacon discards the beacon publish metric.
func (n *NopMetrics) RecordBeacon(_ /* node */ string, _ /* success */ bool) {
	// No-op
}
