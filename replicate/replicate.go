// Package replicate ships queued write packages from a database to its
// replica server.
//
// Each database with a replica owns one Replicator: a FIFO queue of framed
// binary packages and a timer-driven drain loop that sends the head package
// through a Sender whenever the replicator is running and the replica is
// connected. A send failure leaves the package at the head of the queue and
// it is retried on the next tick, so packages reach the replica in order and
// none is dropped short of Close.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wang-shun/siridb-server/cluster"
	"github.com/wang-shun/siridb-server/internal/logging"
	"github.com/wang-shun/siridb-server/internal/metrics"
	"github.com/wang-shun/siridb-server/types"
)

// sendTimeout bounds a single package delivery to the replica.
const sendTimeout = time.Minute

// Common errors for replicator operations.
var (
	ErrClosed    = errors.New("replicator closed")
	ErrQueueFull = errors.New("replication queue full")
)

// Status represents the replicator's lifecycle state.
type Status int32

// Replicator status values.
const (
	// StatusIdle means the queue is drained and the loop is waiting for work.
	StatusIdle Status = iota

	// StatusRunning means the loop is shipping queued packages.
	StatusRunning

	// StatusStopping means Pause was requested while running; the loop
	// settles into StatusPaused at the next tick boundary.
	StatusStopping

	// StatusPaused means the drain loop is held; packages still queue up.
	StatusPaused

	// StatusClosed is terminal.
	StatusClosed
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusPaused:
		return "paused"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Sender delivers one framed package to a replica server.
//
// Implementations transport the frame as-is; the replica side recovers the
// payload with Verify.
type Sender interface {
	Send(ctx context.Context, db *cluster.Database, srv *cluster.Server, frame []byte) error
}

// Replicator drains a FIFO queue of packages to a database's replica.
//
// Thread-safe; create with New, then Start and eventually Close.
type Replicator struct {
	db       *cluster.Database
	replica  *cluster.Server
	sender   Sender
	interval time.Duration
	maxQueue int
	logger   types.Logger
	metrics  types.MetricsCollector

	mu      sync.Mutex
	status  Status
	queue   [][]byte
	started bool
	ticker  *time.Ticker
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a replicator for a database and its replica server.
//
// The replicator holds references on both handles until Close; callers keep
// their own references and release them independently.
//
// Parameters:
//   - db: Database whose writes are replicated
//   - replica: Replica server that receives the packages
//   - sender: Transport used to deliver framed packages
//   - interval: Drain tick interval (typically 10ms)
//   - maxQueue: Queue capacity; Push fails with ErrQueueFull beyond it
//
// Returns:
//   - *Replicator: New replicator in StatusIdle
func New(db *cluster.Database, replica *cluster.Server, sender Sender, interval time.Duration, maxQueue int) *Replicator {
	db.Incref()
	replica.Incref()

	return &Replicator{
		db:       db,
		replica:  replica,
		sender:   sender,
		interval: interval,
		maxQueue: maxQueue,
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
		status:   StatusIdle,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetLogger sets the logger. Optional.
func (r *Replicator) SetLogger(logger types.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if logger != nil {
		r.logger = logger
	}
}

// SetMetrics sets the metrics collector. Optional.
func (r *Replicator) SetMetrics(m types.MetricsCollector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m != nil {
		r.metrics = m
	}
}

// Start launches the drain loop.
//
// Returns:
//   - error: ErrClosed if the replicator was closed
func (r *Replicator) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusClosed {
		return ErrClosed
	}
	if r.started {
		return nil
	}

	r.started = true
	r.ticker = time.NewTicker(r.interval)

	go r.drainLoop()

	return nil
}

// Push frames a package payload and appends it to the queue.
//
// An idle replicator transitions to running so the new package is shipped on
// the next tick. A paused replicator accepts the package but holds it until
// Continue.
//
// Parameters:
//   - payload: Raw package bytes; framed with a checksum before queueing
//
// Returns:
//   - error: ErrClosed or ErrQueueFull
func (r *Replicator) Push(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusClosed {
		return ErrClosed
	}
	if len(r.queue) >= r.maxQueue {
		return fmt.Errorf("%w: %d packages queued for %s", ErrQueueFull, len(r.queue), r.db.Name())
	}

	r.queue = append(r.queue, Frame(payload))
	r.metrics.RecordReplicationQueueDepth(r.db.Name(), len(r.queue))

	if r.status == StatusIdle {
		r.status = StatusRunning
	}

	return nil
}

// Pause requests that the drain loop holds.
//
// An idle replicator pauses immediately. A running one keeps shipping until
// the next tick boundary; poll IsPaused to observe the transition.
func (r *Replicator) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status {
	case StatusIdle:
		r.status = StatusPaused
	case StatusRunning:
		r.status = StatusStopping
	case StatusStopping, StatusPaused, StatusClosed:
	}
}

// Continue resumes a paused replicator.
//
// A replicator paused mid-drain resumes running; one paused while idle
// returns to idle unless packages queued up in the meantime.
func (r *Replicator) Continue() {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status {
	case StatusStopping:
		r.status = StatusRunning
	case StatusPaused:
		if len(r.queue) > 0 {
			r.status = StatusRunning
		} else {
			r.status = StatusIdle
		}
	case StatusIdle, StatusRunning, StatusClosed:
	}
}

// Close terminates the replicator and releases its database and server
// references. Idempotent; queued packages are dropped.
func (r *Replicator) Close() {
	r.mu.Lock()

	if r.status == StatusClosed {
		r.mu.Unlock()

		return
	}

	r.status = StatusClosed
	wasStarted := r.started

	if wasStarted {
		r.ticker.Stop()
		close(r.stopCh)
	}

	r.mu.Unlock()

	if wasStarted {
		<-r.doneCh
	}

	r.queue = nil
	r.replica.Decref()
	r.db.Decref()
}

// Status returns the replicator status.
func (r *Replicator) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

// IsIdle reports whether the queue is drained and the loop is waiting.
func (r *Replicator) IsIdle() bool {
	return r.Status() == StatusIdle
}

// IsPaused reports whether the drain loop is held.
func (r *Replicator) IsPaused() bool {
	return r.Status() == StatusPaused
}

// Len returns the number of queued packages.
func (r *Replicator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.queue)
}

// drainLoop ships the head package once per tick until the queue drains or
// the replicator is paused or closed.
func (r *Replicator) drainLoop() {
	defer close(r.doneCh)

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ticker.C:
			r.onTick()
		}
	}
}

// onTick settles pending pause requests and ships at most one package.
func (r *Replicator) onTick() {
	r.mu.Lock()

	switch r.status {
	case StatusStopping:
		r.status = StatusPaused
		fallthrough
	case StatusIdle, StatusPaused, StatusClosed:
		r.mu.Unlock()

		return
	case StatusRunning:
	}

	if len(r.queue) == 0 {
		r.status = StatusIdle
		r.mu.Unlock()

		return
	}

	if !r.replica.Connected() {
		// Replica offline; the head stays queued for the next tick.
		r.mu.Unlock()

		return
	}

	frame := r.queue[0]
	// Captured under the lock so setter calls after Start are race-free.
	logger, m := r.logger, r.metrics
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	err := r.sender.Send(ctx, r.db, r.replica, frame)
	cancel()

	if err != nil {
		logger.Warn("failed to replicate package, will retry",
			"database", r.db.Name(),
			"replica", r.replica.Name(),
			"error", err,
		)
		m.RecordReplicationFlush(r.db.Name(), false)

		return
	}

	r.mu.Lock()
	// Only the drain loop pops, so the head is still ours.
	r.queue = r.queue[1:]
	depth := len(r.queue)
	r.mu.Unlock()

	m.RecordReplicationFlush(r.db.Name(), true)
	m.RecordReplicationQueueDepth(r.db.Name(), depth)
}
