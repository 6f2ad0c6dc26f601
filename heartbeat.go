package siridb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wang-shun/siridb-server/cluster"
	"github.com/wang-shun/siridb-server/internal/logging"
	"github.com/wang-shun/siridb-server/internal/metrics"
	"github.com/wang-shun/siridb-server/types"
)

// Heartbeat is the periodic cluster-health task of a database node.
//
// On a fixed interval it traverses the node's view of known databases and,
// for each, the peer servers belonging to it, and re-establishes network
// connections to peers that are not currently connected. It is the
// liveness-maintenance mechanism that keeps a node's peer connectivity
// self-healing without operator intervention.
//
// Concurrency contract:
//   - A control goroutine owns the recurring timer and all status
//     transitions; runs execute on a separate worker goroutine.
//   - At most one run is ever in flight, enforced by the Pending/Running
//     status gate rather than a lock around the traversal.
//   - The traversal works against ref-held snapshots of the membership
//     collections, so concurrent mutations (a database being dropped, a
//     server being removed) are never blocked behind a slow connect and
//     never tear objects down under the traversal.
//   - Cancellation is cooperative: observed at the per-database boundary and
//     before each connect attempt; an in-flight connect runs to completion.
//
// Lifecycle:
//   - Create with New()
//   - Call Start() to begin ticking
//   - Call Cancel() to stop; Cancelled is terminal
type Heartbeat struct {
	cfg       Config
	registry  *cluster.Registry
	connector Connector
	logger    Logger
	metrics   MetricsCollector

	status atomic.Int32 // types.Status

	mu      sync.Mutex
	started bool
	ticker  *time.Ticker
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// runResult is what a worker run reports back to the control loop.
type runResult struct {
	start    time.Time
	visited  int
	connects int
	aborted  bool
}

// New creates a new Heartbeat scheduler.
//
// Parameters:
//   - cfg: Runtime configuration (defaults applied, then validated; an
//     invalid heartbeat interval is fatal and surfaced here, before any
//     task starts)
//   - registry: Membership store holding the known databases
//   - connector: Collaborator that performs the actual connection attempts
//   - opts: Optional configuration (logger, metrics)
//
// Returns:
//   - *Heartbeat: Initialized scheduler with status Pending
//   - error: Validation error if configuration or dependencies are invalid
//
// Example:
//
//	cfg := siridb.DefaultConfig()
//	hb, err := siridb.New(&cfg, registry, connector.NewGRPC())
func New(cfg *Config, registry *cluster.Registry, connector Connector, opts ...Option) (*Heartbeat, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if connector == nil {
		return nil, ErrConnectorRequired
	}

	SetDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &heartbeatOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Safe defaults for optional dependencies avoid nil checks everywhere.
	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}
	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}

	h := &Heartbeat{
		cfg:       *cfg,
		registry:  registry,
		connector: connector,
		logger:    loggerInstance,
		metrics:   metricsCollector,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	h.status.Store(int32(types.StatusPending))

	return h, nil
}

// Start launches the recurring heartbeat timer.
//
// The control loop runs on a background goroutine until Cancel is called.
//
// Returns:
//   - error: ErrAlreadyStarted if already running, ErrCancelled after Cancel
func (h *Heartbeat) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return ErrAlreadyStarted
	}
	if h.Status() == types.StatusCancelled {
		return ErrCancelled
	}

	h.started = true
	h.ticker = time.NewTicker(h.cfg.HeartbeatInterval)

	go h.loop()

	h.logger.Info("heartbeat started", "interval", h.cfg.HeartbeatInterval)

	return nil
}

// Cancel stops the heartbeat task. Idempotent.
//
// The status is set to Cancelled unconditionally; Cancelled is terminal and
// no further runs ever start. An in-flight run is requested to abort but not
// interrupted: it observes cancellation at its own safe points, and Cancel
// never blocks waiting for it. Use Done to wait for full drain.
func (h *Heartbeat) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.Status()
	if prev == types.StatusCancelled {
		// Cancel after Cancelled is a no-op, not an error.
		return
	}

	h.transition(prev, types.StatusCancelled)

	if h.ticker != nil {
		h.ticker.Stop()
	}

	if h.started {
		close(h.stopCh)
	} else {
		// Never started: nothing will drain, mark done now.
		close(h.doneCh)
	}

	h.logger.Info("heartbeat cancelled")
}

// transition stores a new status and records the transition.
func (h *Heartbeat) transition(from, to types.Status) {
	h.status.Store(int32(to))
	h.metrics.RecordStatusTransition(from, to)
	h.logger.Debug("status transition", "from", from.String(), "to", to.String())
}

// Status returns the current scheduler status.
//
// Returns:
//   - types.Status: Pending, Running or Cancelled
func (h *Heartbeat) Status() types.Status {
	return types.Status(h.status.Load())
}

// Done returns a channel closed once the control loop has fully drained
// after Cancel, including reconciliation of any run that was in flight.
func (h *Heartbeat) Done() <-chan struct{} {
	return h.doneCh
}

// loop is the control context: it owns the timer and all status transitions
// except the worker's in-run cancellation checks.
func (h *Heartbeat) loop() {
	defer close(h.doneCh)

	completions := make(chan runResult, 1)
	inflight := false

	for {
		select {
		case <-h.stopCh:
			// Cancelled. An in-flight run must still be reconciled so
			// on-complete accounting always happens.
			if inflight {
				res := <-completions
				h.onComplete(res)
			}

			return
		case res := <-completions:
			inflight = false
			h.onComplete(res)
		case <-h.ticker.C:
			if h.onTick(completions) {
				inflight = true
			}
		}
	}
}

// onTick decides whether a new run may start. It must never block: a tick
// that fires while a run is still in flight is skipped, which is intentional
// backpressure rather than queueing.
//
// Returns:
//   - bool: true if a run was dispatched
func (h *Heartbeat) onTick(completions chan<- runResult) bool {
	if !h.status.CompareAndSwap(int32(types.StatusPending), int32(types.StatusRunning)) {
		h.logger.Debug("skip heartbeat task", "status", h.Status().String())
		h.metrics.RecordSkippedTick()

		return false
	}

	h.metrics.RecordStatusTransition(types.StatusPending, types.StatusRunning)
	h.logger.Debug("start heartbeat task")

	start := time.Now()

	// Worker context: the traversal, including any blocking connect, runs
	// here so the control loop keeps observing ticks.
	go func() {
		res := h.runOnce()
		res.start = start
		completions <- res
	}()

	return true
}

// onComplete reconciles status after a run, normal or aborted. Running
// reverts to Pending; Cancelled stays Cancelled.
func (h *Heartbeat) onComplete(res runResult) {
	if h.status.CompareAndSwap(int32(types.StatusRunning), int32(types.StatusPending)) {
		h.metrics.RecordStatusTransition(types.StatusRunning, types.StatusPending)
	}

	elapsed := time.Since(res.start)
	h.metrics.RecordRunDuration(elapsed.Seconds(), res.aborted)
	h.logger.Info("finished heartbeat task",
		"elapsed", elapsed,
		"databases", res.visited,
		"connects", res.connects,
		"aborted", res.aborted,
		"status", h.Status().String(),
	)
}

// cancelled reports whether cancellation has been requested.
func (h *Heartbeat) cancelled() bool {
	return h.Status() == types.StatusCancelled
}

// runOnce performs one snapshot/reconnect traversal on the worker context.
//
// Every snapshot reference is released on every exit path via defer; the
// cancellation flag is checked at the per-database boundary and before each
// connect attempt.
func (h *Heartbeat) runOnce() runResult {
	var res runResult

	dbs := h.registry.Databases()
	defer cluster.ReleaseDatabases(dbs)

	for _, db := range dbs {
		if h.cancelled() {
			h.logger.Info("heartbeat task is cancelled")
			res.aborted = true

			break
		}

		res.visited++
		res.connects += h.reconnectServers(db)

		h.metrics.RecordConnectedPeers(db.Name(), db.ConnectedCount())
		h.logger.Debug("finished heartbeat task for database", "database", db.Name())
	}

	return res
}

// reconnectServers attempts to connect every disconnected, non-self server
// of one database.
//
// Returns:
//   - int: Number of connect attempts made
func (h *Heartbeat) reconnectServers(db *cluster.Database) int {
	servers := db.Servers()
	defer cluster.ReleaseServers(servers)

	self := db.Self()
	attempts := 0

	for _, srv := range servers {
		if srv == self || h.cancelled() || srv.Connected() {
			continue
		}

		attempts++
		if err := h.connect(db, srv); err != nil {
			// Recoverable: logged and skipped, retried naturally on the
			// next interval. Never propagates to other servers.
			h.logger.Warn("failed to connect to server",
				"database", db.Name(),
				"server", srv.Name(),
				"addr", srv.Addr(),
				"error", err,
			)
			h.metrics.RecordConnectAttempt(db.Name(), srv.Name(), false)
		} else {
			h.metrics.RecordConnectAttempt(db.Name(), srv.Name(), true)
		}
	}

	return attempts
}

// connect invokes the connector under the per-connect deadline.
func (h *Heartbeat) connect(db *cluster.Database, srv *cluster.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ConnectTimeout)
	defer cancel()

	if err := h.connector.Connect(ctx, db, srv); err != nil {
		return fmt.Errorf("connect %s/%s: %w", db.Name(), srv.Name(), err)
	}

	return nil
}
