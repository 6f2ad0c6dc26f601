package connector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/wang-shun/siridb-server/cluster"
)

// startPeer runs a bare gRPC server on a random port and returns its address.
func startPeer(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func memberServer(t *testing.T, addr string) (*cluster.Database, *cluster.Server) {
	t.Helper()

	r := cluster.NewRegistry()
	db, err := r.AddDatabase("dbtest")
	require.NoError(t, err)
	srv, err := db.AddServer("sirius-1", addr)
	require.NoError(t, err)

	return db, srv
}

func TestGRPC_Connect(t *testing.T) {
	t.Run("connects and attaches to the server", func(t *testing.T) {
		addr := startPeer(t)
		db, srv := memberServer(t, addr)

		g := NewGRPC()
		defer func() { _ = g.Close() }()

		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()

		require.NoError(t, g.Connect(ctx, db, srv))
		require.True(t, srv.Connected())
	})

	t.Run("idempotent for already-connected servers", func(t *testing.T) {
		addr := startPeer(t)
		db, srv := memberServer(t, addr)

		g := NewGRPC()
		defer func() { _ = g.Close() }()

		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()

		require.NoError(t, g.Connect(ctx, db, srv))
		require.NoError(t, g.Connect(ctx, db, srv))

		// Only one channel exists for the address.
		count := 0
		g.conns.Range(func(string, *grpc.ClientConn) bool {
			count++

			return true
		})
		require.Equal(t, 1, count)
	})

	t.Run("unreachable peer fails within the deadline", func(t *testing.T) {
		// Reserve a port and close it so nothing is listening.
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := lis.Addr().String()
		require.NoError(t, lis.Close())

		db, srv := memberServer(t, addr)

		g := NewGRPC()
		defer func() { _ = g.Close() }()

		ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
		defer cancel()

		require.Error(t, g.Connect(ctx, db, srv))
		require.False(t, srv.Connected())
	})
}

func TestGRPC_Close(t *testing.T) {
	t.Run("closes all channels", func(t *testing.T) {
		addr := startPeer(t)
		db, srv := memberServer(t, addr)

		g := NewGRPC()

		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		defer cancel()
		require.NoError(t, g.Connect(ctx, db, srv))

		require.NoError(t, g.Close())

		count := 0
		g.conns.Range(func(string, *grpc.ClientConn) bool {
			count++

			return true
		})
		require.Equal(t, 0, count)
	})
}
