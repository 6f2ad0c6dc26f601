package cluster

import (
	"sync"

	"github.com/wang-shun/siridb-server/internal/refs"
)

// Registry is the node's membership store: a mutex-guarded, insertion-ordered
// collection of databases.
//
// All methods are safe for concurrent use. The guard is held only during
// snapshot copy and membership mutation, never across I/O.
type Registry struct {
	mu  sync.Mutex
	dbs []*Database
}

// NewRegistry creates an empty membership store.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddDatabase adds a database to the registry.
//
// Parameters:
//   - name: Database name, unique within the registry
//
// Returns:
//   - *Database: The new member (owned by the registry; callers keeping the
//     handle beyond the membership lifetime must Incref it)
//   - error: ErrDatabaseExists if the name is already taken
func (r *Registry) AddDatabase(name string) (*Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, db := range r.dbs {
		if db.name == name {
			return nil, ErrDatabaseExists
		}
	}

	db := newDatabase(name)
	r.dbs = append(r.dbs, db)

	return db, nil
}

// DropDatabase removes a database from the registry, dropping the registry's
// reference to it. The database and its servers are destroyed once any
// outstanding snapshots release theirs.
//
// Returns:
//   - bool: true if the database was a member
func (r *Registry) DropDatabase(name string) bool {
	r.mu.Lock()
	var dropped *Database
	for i, db := range r.dbs {
		if db.name == name {
			dropped = db
			r.dbs = append(r.dbs[:i], r.dbs[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if dropped == nil {
		return false
	}

	dropped.Decref()

	return true
}

// Databases returns a ref-held, point-in-time snapshot of the known databases
// in insertion order. The caller must release it with ReleaseDatabases (or
// refs.Release) on every exit path.
func (r *Registry) Databases() []*Database {
	return refs.Snapshot(&r.mu, &r.dbs)
}

// Len returns the number of databases currently in the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.dbs)
}

// ReleaseDatabases releases a snapshot taken with Databases.
func ReleaseDatabases(snap []*Database) {
	refs.Release(snap)
}

// ReleaseServers releases a snapshot taken with Database.Servers.
func ReleaseServers(snap []*Server) {
	refs.Release(snap)
}
