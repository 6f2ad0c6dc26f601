package cluster

import (
	"sync"

	"github.com/wang-shun/siridb-server/internal/refs"
)

// Conn is a live connection to a peer server.
//
// The membership store never depends on a concrete transport; connectors
// attach whatever satisfies this interface.
type Conn interface {
	// Alive reports whether the connection is currently usable.
	Alive() bool

	// Close tears the connection down.
	Close() error
}

// Server is one peer server belonging to a database.
//
// A Server is shared between the membership store and any outstanding
// snapshots; its lifetime is tracked by the embedded reference count. When
// the count reaches zero any attached connection is closed.
type Server struct {
	refs.Counter

	name string
	addr string

	mu   sync.Mutex
	conn Conn
}

func newServer(name, addr string) *Server {
	s := &Server{name: name, addr: addr}
	s.Init(s.close)

	return s
}

// Name returns the server name.
func (s *Server) Name() string {
	return s.name
}

// Addr returns the server's network address.
func (s *Server) Addr() string {
	return s.addr
}

// Connected reports whether the server currently has a live connection open.
func (s *Server) Connected() bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	return conn != nil && conn.Alive()
}

// Attach installs a connection on the server, closing any previous one.
func (s *Server) Attach(conn Conn) {
	s.mu.Lock()
	prev := s.conn
	s.conn = conn
	s.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
}

// Detach removes and returns the attached connection without closing it.
//
// Returns:
//   - Conn: The previously attached connection, or nil
func (s *Server) Detach() Conn {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	return conn
}

// close destroys the server once its reference count reaches zero.
func (s *Server) close() {
	if conn := s.Detach(); conn != nil {
		_ = conn.Close()
	}
}
