package cluster

import (
	"sync"

	"github.com/wang-shun/siridb-server/internal/refs"
)

// Database is one database known to this node, together with the peer
// servers that belong to it.
//
// The server collection is ordered by insertion and guarded by its own
// mutex, held only during snapshot copy. The distinguished self server
// identifies which member entry represents the local node; reconnect
// traversals must skip it.
type Database struct {
	refs.Counter

	name string

	mu      sync.Mutex
	servers []*Server
	self    *Server
}

func newDatabase(name string) *Database {
	d := &Database{name: name}
	d.Init(d.close)

	return d
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.name
}

// AddServer adds a peer server to the database.
//
// Parameters:
//   - name: Server name, unique within the database
//   - addr: Network address of the server
//
// Returns:
//   - *Server: The new member (owned by the database; callers keeping the
//     handle beyond the membership lifetime must Incref it)
//   - error: ErrServerExists if the name is already taken
func (d *Database) AddServer(name, addr string) (*Server, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, srv := range d.servers {
		if srv.name == name {
			return nil, ErrServerExists
		}
	}

	srv := newServer(name, addr)
	d.servers = append(d.servers, srv)

	return srv, nil
}

// RemoveServer removes a peer server from the database, dropping the
// database's reference to it. The server is destroyed once any outstanding
// snapshots release theirs.
//
// Returns:
//   - bool: true if the server was a member
func (d *Database) RemoveServer(name string) bool {
	d.mu.Lock()
	var removed *Server
	for i, srv := range d.servers {
		if srv.name == name {
			removed = srv
			d.servers = append(d.servers[:i], d.servers[i+1:]...)
			break
		}
	}
	if removed != nil && d.self == removed {
		d.self = nil
	}
	d.mu.Unlock()

	if removed == nil {
		return false
	}

	removed.Decref()

	return true
}

// Servers returns a ref-held, point-in-time snapshot of the database's
// servers in insertion order. The caller must release it with
// ReleaseServers (or refs.Release) on every exit path.
func (d *Database) Servers() []*Server {
	return refs.Snapshot(&d.mu, &d.servers)
}

// SetSelf marks a member server as the entry representing the local node.
//
// Returns:
//   - error: ErrNotMember if srv is not a member of the database
func (d *Database) SetSelf(srv *Server) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, member := range d.servers {
		if member == srv {
			d.self = srv

			return nil
		}
	}

	return ErrNotMember
}

// Self returns the server entry representing the local node, or nil.
func (d *Database) Self() *Server {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.self
}

// ConnectedCount returns the number of member servers with a live connection.
func (d *Database) ConnectedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0
	for _, srv := range d.servers {
		if srv.Connected() {
			count++
		}
	}

	return count
}

// close destroys the database once its reference count reaches zero,
// dropping its reference to every member server.
func (d *Database) close() {
	d.mu.Lock()
	servers := d.servers
	d.servers = nil
	d.self = nil
	d.mu.Unlock()

	for _, srv := range servers {
		srv.Decref()
	}
}
