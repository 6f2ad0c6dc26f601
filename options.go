package siridb

import (
	"context"

	"github.com/wang-shun/siridb-server/cluster"
)

// Option configures a Heartbeat with optional dependencies.
type Option func(*heartbeatOptions)

// heartbeatOptions holds optional Heartbeat configuration.
type heartbeatOptions struct {
	logger  Logger
	metrics MetricsCollector
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (see internal/logging for slog and nop)
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	logger := logging.NewSlogDefault()
//	hb, err := siridb.New(&cfg, registry, conn, siridb.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *heartbeatOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for New
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *heartbeatOptions) {
		o.metrics = metrics
	}
}

// Connector opens network connections to peer servers.
//
// Semantics:
//   - Called once per disconnected, non-self server per heartbeat run
//   - MUST attach the resulting connection to the server on success so that
//     Server.Connected() reflects it (idempotent for already-attached servers)
//   - MAY block for real network I/O; the scheduler bounds each call with
//     the configured connect timeout and never invokes it on the control
//     context
//   - Errors are logged and skipped, never retried within the same run
//
// Concurrency: at most one Connect call is in flight at a time under the
// scheduler's mutual-exclusion gate, but implementations SHOULD be safe for
// concurrent use since hosts may share them across components.
type Connector interface {
	// Connect attempts to open a connection from this node to the target
	// server of the given database.
	//
	// Parameters:
	//   - ctx: Context carrying the per-connect deadline
	//   - db: Database the server belongs to
	//   - srv: Target peer server
	//
	// Returns:
	//   - error: Non-nil if the connection could not be established
	Connect(ctx context.Context, db *cluster.Database, srv *cluster.Server) error
}
