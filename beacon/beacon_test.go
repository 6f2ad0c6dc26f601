package beacon

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wang-shun/siridb-server/internal/metrics"
	siritest "github.com/wang-shun/siridb-server/testing"
	"github.com/wang-shun/siridb-server/types"
)

// captureMetrics counts beacon publishes.
type captureMetrics struct {
	*metrics.NopMetrics

	beacons atomic.Int32
}

func (c *captureMetrics) RecordBeacon(_ /* node */ string, _ /* success */ bool) {
	c.beacons.Add(1)
}

func TestBeacon_StartStop(t *testing.T) {
	_, nc := siritest.StartEmbeddedNATS(t)
	kv := siritest.CreateJetStreamKV(t, nc, "beacon-start-stop")

	b := New(kv, "node", "server-0", 50*time.Millisecond)
	b.SetLogger(siritest.NewTestLogger(t))

	require.NoError(t, b.Start(t.Context()))
	require.True(t, b.IsStarted())

	t.Run("initial record visible immediately", func(t *testing.T) {
		records, err := b.Alive(t.Context())
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, "server-0", records[0].Node)
		require.Equal(t, types.StatusPending.String(), records[0].Status)
		require.WithinDuration(t, time.Now().UTC(), records[0].Time, 5*time.Second)
	})

	t.Run("start twice fails", func(t *testing.T) {
		require.ErrorIs(t, b.Start(t.Context()), ErrAlreadyStarted)
	})

	t.Run("stop deletes the record", func(t *testing.T) {
		require.NoError(t, b.Stop())
		require.False(t, b.IsStarted())

		records, err := b.Alive(t.Context())
		require.NoError(t, err)
		require.Empty(t, records)
	})

	t.Run("stop twice fails", func(t *testing.T) {
		require.ErrorIs(t, b.Stop(), ErrNotStarted)
	})
}

func TestBeacon_Restart(t *testing.T) {
	_, nc := siritest.StartEmbeddedNATS(t)
	kv := siritest.CreateJetStreamKV(t, nc, "beacon-restart")

	b := New(kv, "node", "server-0", 20*time.Millisecond)

	require.NoError(t, b.Start(t.Context()))
	require.NoError(t, b.Stop())

	// A stopped beacon may be started again with a fresh publish cycle.
	require.NoError(t, b.Start(t.Context()))
	require.True(t, b.IsStarted())

	records, err := b.Alive(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 1)
	first := records[0].Time

	// The restarted cycle keeps republishing in the background.
	require.Eventually(t, func() bool {
		records, err := b.Alive(t.Context())

		return err == nil && len(records) == 1 && records[0].Time.After(first)
	}, 3*time.Second, 10*time.Millisecond, "restarted beacon never republished")

	require.NoError(t, b.Stop())
}

func TestBeacon_SetMetricsAfterStart(t *testing.T) {
	_, nc := siritest.StartEmbeddedNATS(t)
	kv := siritest.CreateJetStreamKV(t, nc, "beacon-late-metrics")

	b := New(kv, "node", "server-0", 20*time.Millisecond)
	require.NoError(t, b.Start(t.Context()))
	defer b.Stop() //nolint:errcheck

	// A collector installed while the publish loop runs is picked up.
	m := &captureMetrics{NopMetrics: metrics.NewNop()}
	b.SetMetrics(m)
	b.SetLogger(siritest.NewTestLogger(t))

	require.Eventually(t, func() bool {
		return m.beacons.Load() > 0
	}, 3*time.Second, 10*time.Millisecond, "late collector never observed a publish")
}

func TestBeacon_RequiresNodeID(t *testing.T) {
	_, nc := siritest.StartEmbeddedNATS(t)
	kv := siritest.CreateJetStreamKV(t, nc, "beacon-no-node")

	b := New(kv, "node", "", 50*time.Millisecond)
	require.ErrorIs(t, b.Start(t.Context()), ErrNoNodeID)
}

func TestBeacon_StatusFunc(t *testing.T) {
	_, nc := siritest.StartEmbeddedNATS(t)
	kv := siritest.CreateJetStreamKV(t, nc, "beacon-status")

	b := New(kv, "node", "server-0", time.Hour)
	b.SetStatusFunc(func() types.Status { return types.StatusRunning })

	require.NoError(t, b.Start(t.Context()))
	defer b.Stop() //nolint:errcheck

	records, err := b.Alive(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, types.StatusRunning.String(), records[0].Status)
}

func TestBeacon_MultipleNodes(t *testing.T) {
	_, nc := siritest.StartEmbeddedNATS(t)
	kv := siritest.CreateJetStreamKV(t, nc, "beacon-multi")

	nodes := []string{"server-0", "server-1", "server-2"}
	for _, node := range nodes {
		b := New(kv, "node", node, time.Hour)
		require.NoError(t, b.Start(t.Context()))
		defer b.Stop() //nolint:errcheck
	}

	observer := New(kv, "node", "server-0", time.Hour)
	records, err := observer.Alive(t.Context())
	require.NoError(t, err)
	require.Len(t, records, len(nodes))

	seen := make(map[string]bool)
	for _, rec := range records {
		seen[rec.Node] = true
	}
	for _, node := range nodes {
		require.True(t, seen[node], "missing record for %s", node)
	}
}

func TestBeacon_PeriodicRepublish(t *testing.T) {
	_, nc := siritest.StartEmbeddedNATS(t)
	kv := siritest.CreateJetStreamKV(t, nc, "beacon-republish")

	b := New(kv, "node", "server-0", 30*time.Millisecond)
	require.NoError(t, b.Start(t.Context()))
	defer b.Stop() //nolint:errcheck

	records, err := b.Alive(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 1)
	first := records[0].Time

	require.Eventually(t, func() bool {
		records, err := b.Alive(t.Context())
		if err != nil || len(records) != 1 {
			return false
		}

		return records[0].Time.After(first)
	}, 3*time.Second, 20*time.Millisecond, "record never republished")
}

func TestEnsureBucket(t *testing.T) {
	_, nc := siritest.StartEmbeddedNATS(t)

	kv, err := EnsureBucket(t.Context(), nc, "beacon-ensure", 6*time.Second)
	require.NoError(t, err)
	require.NotNil(t, kv)

	// Idempotent on an existing bucket.
	again, err := EnsureBucket(t.Context(), nc, "beacon-ensure", 6*time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)

	b := New(kv, "node", "server-0", time.Hour)
	require.NoError(t, b.Start(t.Context()))
	require.NoError(t, b.Stop())
}
