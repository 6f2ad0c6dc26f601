// Package connector provides Connector implementations that open network
// connections to peer servers.
package connector

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	siridb "github.com/wang-shun/siridb-server"
	"github.com/wang-shun/siridb-server/cluster"
)

// GRPC connects to peer servers over gRPC.
//
// One client connection is kept per peer address; repeated Connect calls for
// the same address reuse it. On success the live connection is attached to
// the Server so that Server.Connected() reflects it.
//
// Safe for concurrent use.
type GRPC struct {
	conns *xsync.Map[string, *grpc.ClientConn]
	opts  []grpc.DialOption
}

// Compile-time assertion that GRPC implements siridb.Connector.
var _ siridb.Connector = (*GRPC)(nil)

// grpcConn adapts a *grpc.ClientConn to cluster.Conn.
type grpcConn struct {
	cc *grpc.ClientConn
}

// Alive reports whether the underlying channel is usable.
func (c *grpcConn) Alive() bool {
	switch c.cc.GetState() {
	case connectivity.Ready, connectivity.Idle:
		return true
	default:
		return false
	}
}

// Close closes the underlying channel.
func (c *grpcConn) Close() error {
	return c.cc.Close()
}

// NewGRPC creates a gRPC-based connector.
//
// Parameters:
//   - opts: Extra dial options; transport credentials default to insecure
//     when none are provided
//
// Returns:
//   - *GRPC: A new connector instance
func NewGRPC(opts ...grpc.DialOption) *GRPC {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	return &GRPC{
		conns: xsync.NewMap[string, *grpc.ClientConn](),
		opts:  opts,
	}
}

// Connect opens a connection to the target server if none is currently open
// and attaches it to the server. Idempotent for already-connected servers.
//
// Parameters:
//   - ctx: Context carrying the per-connect deadline
//   - db: Database the server belongs to
//   - srv: Target peer server
//
// Returns:
//   - error: Non-nil if the channel did not become ready within the deadline
func (g *GRPC) Connect(ctx context.Context, db *cluster.Database, srv *cluster.Server) error {
	if srv.Connected() {
		return nil
	}

	cc, err := g.channelFor(srv.Addr())
	if err != nil {
		return fmt.Errorf("failed to create channel for %s/%s: %w", db.Name(), srv.Name(), err)
	}

	if err := waitReady(ctx, cc); err != nil {
		return fmt.Errorf("peer %s (%s) not reachable: %w", srv.Name(), srv.Addr(), err)
	}

	// A stale adapter on this server wraps the same shared channel, so it
	// must be detached without closing before the new one goes on.
	srv.Detach()
	srv.Attach(&grpcConn{cc: cc})

	return nil
}

// Close tears down every channel held by the connector.
func (g *GRPC) Close() error {
	var firstErr error
	g.conns.Range(func(addr string, cc *grpc.ClientConn) bool {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close channel to %s: %w", addr, err)
		}
		g.conns.Delete(addr)

		return true
	})

	return firstErr
}

// channelFor returns the cached channel for addr, dialing lazily.
func (g *GRPC) channelFor(addr string) (*grpc.ClientConn, error) {
	if cc, ok := g.conns.Load(addr); ok {
		return cc, nil
	}

	cc, err := grpc.NewClient(addr, g.opts...)
	if err != nil {
		return nil, err
	}

	if prev, loaded := g.conns.LoadOrStore(addr, cc); loaded {
		// Lost the race with a concurrent dial; keep the stored one.
		_ = cc.Close()

		return prev, nil
	}

	return cc, nil
}

// waitReady drives the channel out of idle and waits until it is ready or
// the context expires.
func waitReady(ctx context.Context, cc *grpc.ClientConn) error {
	cc.Connect()

	for {
		state := cc.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if state == connectivity.Shutdown {
			return fmt.Errorf("channel is shut down")
		}

		if !cc.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}
