// Package beacon publishes a node's liveness record to a NATS JetStream KV
// bucket so that cluster peers can observe which nodes are up.
//
// Each node writes a small JSON record (node ID, heartbeat scheduler status,
// timestamp) at a regular interval to a bucket whose TTL is about three times
// the interval; a node that stops publishing disappears from the bucket after
// roughly three missed beacons. Alive lists the records still present.
package beacon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wang-shun/siridb-server/internal/kvutil"
	"github.com/wang-shun/siridb-server/internal/logging"
	"github.com/wang-shun/siridb-server/internal/metrics"
	"github.com/wang-shun/siridb-server/types"
)

// Common errors for beacon operations.
var (
	ErrNotStarted     = errors.New("beacon not started")
	ErrAlreadyStarted = errors.New("beacon already started")
	ErrNoNodeID       = errors.New("node ID not set")
)

// Record is the liveness record published by a node.
type Record struct {
	// Node is the publishing node's ID.
	Node string `json:"node"`

	// Status is the node's heartbeat scheduler status at publish time.
	Status string `json:"status"`

	// Time is the publish timestamp.
	Time time.Time `json:"time"`
}

// StatusFunc reports the heartbeat scheduler status to embed in each record.
type StatusFunc func() types.Status

// Beacon publishes periodic liveness records for one node.
//
// Thread-safe; create with New, then Start and eventually Stop.
type Beacon struct {
	kv       jetstream.KeyValue
	prefix   string
	nodeID   string
	interval time.Duration
	statusFn StatusFunc
	metrics  types.MetricsCollector
	logger   types.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticker  *time.Ticker
}

// New creates a liveness beacon for a node.
//
// The KV bucket should be configured with a TTL of ~3x the publish interval
// so a crashed node disappears after about three missed beacons.
//
// Parameters:
//   - kv: JetStream KV bucket for liveness records
//   - prefix: Key prefix for records (e.g. "node")
//   - nodeID: This node's ID
//   - interval: Publish interval (typically 2s)
//
// Returns:
//   - *Beacon: New beacon instance
func New(kv jetstream.KeyValue, prefix, nodeID string, interval time.Duration) *Beacon {
	return &Beacon{
		kv:       kv,
		prefix:   prefix,
		nodeID:   nodeID,
		interval: interval,
		statusFn: func() types.Status { return types.StatusPending },
		metrics:  metrics.NewNop(),
		logger:   logging.NewNop(),
	}
}

// SetStatusFunc sets the source of the scheduler status embedded in records.
// Must be called before Start.
func (b *Beacon) SetStatusFunc(fn StatusFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if fn != nil {
		b.statusFn = fn
	}
}

// SetMetrics sets the metrics collector for beacon events. Optional.
func (b *Beacon) SetMetrics(m types.MetricsCollector) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m != nil {
		b.metrics = m
	}
}

// SetLogger sets the logger. Optional.
func (b *Beacon) SetLogger(logger types.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if logger != nil {
		b.logger = logger
	}
}

// Start publishes the first record immediately, then at regular intervals in
// the background until Stop is called. A stopped beacon may be started again.
//
// Parameters:
//   - ctx: Context for the initial publish
//
// Returns:
//   - error: ErrAlreadyStarted if already running, ErrNoNodeID if the node ID
//     is empty, or the initial publish error
func (b *Beacon) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}
	if b.nodeID == "" {
		return ErrNoNodeID
	}

	b.started = true
	// Fresh channels per start so a restart never observes the previous
	// cycle's closed channels.
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.ticker = time.NewTicker(b.interval)

	if err := b.publish(ctx); err != nil {
		b.started = false
		b.ticker.Stop()

		return fmt.Errorf("failed to publish initial beacon: %w", err)
	}

	go b.publishLoop(b.ticker, b.stopCh, b.doneCh)

	return nil
}

// Stop stops the beacon and deletes this node's record from KV.
//
// Blocks until the publisher goroutine exits. The record is deleted to signal
// shutdown immediately instead of waiting for TTL expiration.
//
// Returns:
//   - error: ErrNotStarted if not running, or the cleanup error
func (b *Beacon) Stop() error {
	b.mu.Lock()

	if !b.started {
		b.mu.Unlock()

		return ErrNotStarted
	}

	b.ticker.Stop()
	close(b.stopCh)
	b.started = false
	done := b.doneCh

	b.mu.Unlock()

	<-done

	// The node is going away; delete under a fresh bounded context.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.kv.Delete(ctx, b.key()); err != nil {
		return fmt.Errorf("stopped but failed to delete beacon record: %w", err)
	}

	return nil
}

// IsStarted reports whether the beacon is currently running.
func (b *Beacon) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.started
}

// NodeID returns the node ID this beacon publishes for.
func (b *Beacon) NodeID() string {
	return b.nodeID
}

// Alive lists the liveness records currently present in the bucket.
//
// Parameters:
//   - ctx: Context for the KV listing
//
// Returns:
//   - []Record: Records of nodes that published within the bucket TTL
//   - error: KV listing error
func (b *Beacon) Alive(ctx context.Context) ([]Record, error) {
	lister, err := b.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list beacon keys: %w", err)
	}

	var records []Record
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, b.prefix+".") {
			continue
		}

		entry, err := b.kv.Get(ctx, key)
		if err != nil {
			// Expired between listing and get; skip.
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to read beacon record %s: %w", key, err)
		}

		var rec Record
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			logger, _ := b.deps()
			logger.Warn("skipping malformed beacon record", "key", key, "error", err)

			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// publishLoop is the background goroutine that publishes records. It works
// against its own start cycle's ticker and channels so a restart never
// touches a previous cycle's state.
func (b *Beacon) publishLoop(ticker *time.Ticker, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := b.publish(ctx)
			cancel()

			logger, m := b.deps()
			if err != nil {
				logger.Warn("failed to publish beacon", "node", b.nodeID, "error", err)
				m.RecordBeacon(b.nodeID, false)
			} else {
				m.RecordBeacon(b.nodeID, true)
			}
		}
	}
}

// deps returns the logger and metrics collector under the lock, so setter
// calls after Start are observed without a data race.
func (b *Beacon) deps() (types.Logger, types.MetricsCollector) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.logger, b.metrics
}

// publish writes this node's liveness record to KV.
func (b *Beacon) publish(ctx context.Context) error {
	rec := Record{
		Node:   b.nodeID,
		Status: b.statusFn().String(),
		Time:   time.Now().UTC(),
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal beacon record: %w", err)
	}

	if _, err := b.kv.Put(ctx, b.key(), value); err != nil {
		return fmt.Errorf("failed to publish beacon for %s: %w", b.nodeID, err)
	}

	return nil
}

// key generates the KV key for this node's record.
func (b *Beacon) key() string {
	return fmt.Sprintf("%s.%s", b.prefix, b.nodeID)
}

// EnsureBucket creates or opens the beacon KV bucket.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - nc: NATS connection
//   - bucket: Bucket name
//   - ttl: Record TTL (~3x the publish interval)
//
// Returns:
//   - jetstream.KeyValue: The bucket instance
//   - error: Creation error
func EnsureBucket(ctx context.Context, nc *nats.Conn, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	cfg := jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1, // Keep only latest record
	}
	if ttl > 0 {
		cfg.TTL = ttl
	}

	const maxRetries = 5

	kv, err := kvutil.EnsureBucket(ctx, js, cfg, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to create/open beacon bucket %s: %w", bucket, err)
	}

	return kv, nil
}
