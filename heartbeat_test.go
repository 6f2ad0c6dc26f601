package siridb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wang-shun/siridb-server/cluster"
	"github.com/wang-shun/siridb-server/types"
)

// fakeConn implements cluster.Conn.
type fakeConn struct {
	alive atomic.Bool
}

func newFakeConn() *fakeConn {
	c := &fakeConn{}
	c.alive.Store(true)

	return c
}

func (c *fakeConn) Alive() bool { return c.alive.Load() }

func (c *fakeConn) Close() error {
	c.alive.Store(false)

	return nil
}

// fakeConnector records connect attempts and can be made to block or fail.
type fakeConnector struct {
	mu       sync.Mutex
	attempts []string // "db/server"
	fail     bool

	// blockOn, when set, blocks Connect calls for the named database until
	// release is closed.
	blockOn string
	entered chan struct{}
	release chan struct{}
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (f *fakeConnector) Connect(_ context.Context, db *cluster.Database, srv *cluster.Server) error {
	f.mu.Lock()
	f.attempts = append(f.attempts, db.Name()+"/"+srv.Name())
	blocked := f.blockOn != "" && db.Name() == f.blockOn
	fail := f.fail
	f.mu.Unlock()

	if blocked {
		f.entered <- struct{}{}
		<-f.release
	}

	if fail {
		return fmt.Errorf("connection refused")
	}

	srv.Attach(newFakeConn())

	return nil
}

func (f *fakeConnector) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.attempts))
	copy(out, f.attempts)

	return out
}

// buildRegistry creates dbCount databases named db0..dbN, each with
// srvCount servers named srv0..srvM. srv0 of each database is the self entry.
func buildRegistry(t *testing.T, dbCount, srvCount int) *cluster.Registry {
	t.Helper()

	r := cluster.NewRegistry()
	for i := range dbCount {
		db, err := r.AddDatabase(fmt.Sprintf("db%d", i))
		require.NoError(t, err)

		for j := range srvCount {
			srv, err := db.AddServer(fmt.Sprintf("srv%d", j), fmt.Sprintf("10.0.%d.%d:9010", i, j))
			require.NoError(t, err)
			if j == 0 {
				require.NoError(t, db.SetSelf(srv))
			}
		}
	}

	return r
}

func newTestHeartbeat(t *testing.T, r *cluster.Registry, c Connector) *Heartbeat {
	t.Helper()

	cfg := TestConfig()
	hb, err := New(&cfg, r, c)
	require.NoError(t, err)

	return hb
}

func TestNew(t *testing.T) {
	t.Run("validates dependencies", func(t *testing.T) {
		cfg := TestConfig()
		r := cluster.NewRegistry()
		c := newFakeConnector()

		_, err := New(nil, r, c)
		require.ErrorIs(t, err, ErrInvalidConfig)

		_, err = New(&cfg, nil, c)
		require.ErrorIs(t, err, ErrRegistryRequired)

		_, err = New(&cfg, r, nil)
		require.ErrorIs(t, err, ErrConnectorRequired)
	})

	t.Run("rejects invalid interval", func(t *testing.T) {
		cfg := TestConfig()
		cfg.HeartbeatInterval = -time.Second

		_, err := New(&cfg, cluster.NewRegistry(), newFakeConnector())
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("initial status is pending", func(t *testing.T) {
		hb := newTestHeartbeat(t, cluster.NewRegistry(), newFakeConnector())
		require.Equal(t, types.StatusPending, hb.Status())
	})
}

func TestHeartbeat_RunOnce(t *testing.T) {
	t.Run("connects every disconnected non-self peer", func(t *testing.T) {
		r := buildRegistry(t, 2, 3)
		c := newFakeConnector()
		hb := newTestHeartbeat(t, r, c)

		res := hb.runOnce()

		require.Equal(t, 2, res.visited)
		require.Equal(t, 4, res.connects)
		require.ElementsMatch(t,
			[]string{"db0/srv1", "db0/srv2", "db1/srv1", "db1/srv2"},
			c.calls(),
		)
	})

	t.Run("self entry is never dialed", func(t *testing.T) {
		r := buildRegistry(t, 3, 2)
		c := newFakeConnector()
		hb := newTestHeartbeat(t, r, c)

		hb.runOnce()

		for _, call := range c.calls() {
			require.NotContains(t, call, "/srv0")
		}
	})

	t.Run("second run with everything connected is a no-op", func(t *testing.T) {
		r := buildRegistry(t, 2, 3)
		c := newFakeConnector()
		hb := newTestHeartbeat(t, r, c)

		first := hb.runOnce()
		require.Equal(t, 4, first.connects)

		second := hb.runOnce()
		require.Equal(t, 0, second.connects)
		require.Len(t, c.calls(), 4)
	})

	t.Run("scenario: one self and one connected peer per database", func(t *testing.T) {
		// 2 databases x 3 servers: srv0 is self, srv1 already connected.
		r := buildRegistry(t, 2, 3)
		for _, db := range r.Databases() {
			servers := db.Servers()
			servers[1].Attach(newFakeConn())
			cluster.ReleaseServers(servers)
			db.Decref()
		}

		c := newFakeConnector()
		hb := newTestHeartbeat(t, r, c)

		res := hb.runOnce()
		require.Equal(t, 2, res.connects)
		require.ElementsMatch(t, []string{"db0/srv2", "db1/srv2"}, c.calls())
	})

	t.Run("a failing peer does not abort the traversal", func(t *testing.T) {
		r := buildRegistry(t, 2, 2)
		c := newFakeConnector()
		c.fail = true
		hb := newTestHeartbeat(t, r, c)

		res := hb.runOnce()
		require.Equal(t, 2, res.visited)
		require.Len(t, c.calls(), 2)
		require.False(t, res.aborted)
	})

	t.Run("empty registry is a no-op run", func(t *testing.T) {
		c := newFakeConnector()
		hb := newTestHeartbeat(t, cluster.NewRegistry(), c)

		res := hb.runOnce()
		require.Equal(t, 0, res.visited)
		require.Empty(t, c.calls())
	})
}

func TestHeartbeat_ReferenceBalance(t *testing.T) {
	t.Run("increments equal decrements across run sizes", func(t *testing.T) {
		for dbCount := 0; dbCount <= 3; dbCount++ {
			for srvCount := 0; srvCount <= 3; srvCount++ {
				r := buildRegistry(t, dbCount, srvCount)
				hb := newTestHeartbeat(t, r, newFakeConnector())

				hb.runOnce()

				snap := r.Databases()
				for _, db := range snap {
					require.Equal(t, int32(2), db.Refs(),
						"db refcount after run, %d dbs x %d servers", dbCount, srvCount)
					servers := db.Servers()
					for _, srv := range servers {
						require.Equal(t, int32(2), srv.Refs())
					}
					cluster.ReleaseServers(servers)
				}
				cluster.ReleaseDatabases(snap)
			}
		}
	})

	t.Run("balanced on the early-cancel abort path", func(t *testing.T) {
		r := buildRegistry(t, 3, 2)
		c := newFakeConnector()
		c.blockOn = "db0"
		hb := newTestHeartbeat(t, r, c)

		done := make(chan runResult, 1)
		go func() { done <- hb.runOnce() }()

		<-c.entered
		hb.status.Store(int32(types.StatusCancelled))
		close(c.release)

		res := <-done
		require.True(t, res.aborted)

		snap := r.Databases()
		for _, db := range snap {
			require.Equal(t, int32(2), db.Refs())
		}
		cluster.ReleaseDatabases(snap)
	})
}

func TestHeartbeat_CancellationBoundary(t *testing.T) {
	t.Run("databases after the cancel point are not visited", func(t *testing.T) {
		r := buildRegistry(t, 3, 2)
		c := newFakeConnector()
		c.blockOn = "db0"
		hb := newTestHeartbeat(t, r, c)

		done := make(chan runResult, 1)
		go func() { done <- hb.runOnce() }()

		// Wait until the run is inside db0's connect, then cancel. The
		// in-flight connect finishes; db1 and db2 are never visited.
		<-c.entered
		hb.status.Store(int32(types.StatusCancelled))
		close(c.release)

		res := <-done
		require.True(t, res.aborted)
		require.Equal(t, []string{"db0/srv1"}, c.calls())
	})
}

func TestHeartbeat_Scheduling(t *testing.T) {
	t.Run("ticks while running are skipped", func(t *testing.T) {
		r := buildRegistry(t, 1, 2)
		c := newFakeConnector()
		c.blockOn = "db0"
		hb := newTestHeartbeat(t, r, c)

		require.NoError(t, hb.Start())

		// First tick dispatches a run that blocks inside connect; further
		// ticks keep firing and must not start a second run.
		<-c.entered
		require.Equal(t, types.StatusRunning, hb.Status())

		time.Sleep(4 * hb.cfg.HeartbeatInterval)
		require.Len(t, c.calls(), 1)

		close(c.release)

		require.Eventually(t, func() bool {
			return hb.Status() == types.StatusPending
		}, time.Second, 5*time.Millisecond)

		hb.Cancel()
		<-hb.Done()
	})

	t.Run("status reconciles to pending after each run", func(t *testing.T) {
		r := buildRegistry(t, 1, 2)
		c := newFakeConnector()
		hb := newTestHeartbeat(t, r, c)

		require.NoError(t, hb.Start())

		require.Eventually(t, func() bool {
			return len(c.calls()) >= 1 && hb.Status() == types.StatusPending
		}, time.Second, 5*time.Millisecond)

		hb.Cancel()
		<-hb.Done()
		require.Equal(t, types.StatusCancelled, hb.Status())
	})

	t.Run("start twice returns ErrAlreadyStarted", func(t *testing.T) {
		hb := newTestHeartbeat(t, cluster.NewRegistry(), newFakeConnector())

		require.NoError(t, hb.Start())
		require.ErrorIs(t, hb.Start(), ErrAlreadyStarted)

		hb.Cancel()
		<-hb.Done()
	})
}

func TestHeartbeat_Cancel(t *testing.T) {
	t.Run("cancel before start prevents all runs", func(t *testing.T) {
		hb := newTestHeartbeat(t, cluster.NewRegistry(), newFakeConnector())

		hb.Cancel()
		require.Equal(t, types.StatusCancelled, hb.Status())
		require.ErrorIs(t, hb.Start(), ErrCancelled)
		<-hb.Done()
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		hb := newTestHeartbeat(t, cluster.NewRegistry(), newFakeConnector())

		require.NoError(t, hb.Start())
		hb.Cancel()
		require.NotPanics(t, hb.Cancel)
		<-hb.Done()
	})

	t.Run("cancel during a run leaves status cancelled after reconciliation", func(t *testing.T) {
		r := buildRegistry(t, 2, 2)
		c := newFakeConnector()
		c.blockOn = "db0"
		hb := newTestHeartbeat(t, r, c)

		require.NoError(t, hb.Start())

		<-c.entered
		hb.Cancel()
		close(c.release)

		<-hb.Done()
		require.Equal(t, types.StatusCancelled, hb.Status())

		// No further ticks produce runs.
		calls := len(c.calls())
		time.Sleep(4 * hb.cfg.HeartbeatInterval)
		require.Len(t, c.calls(), calls)
	})
}
