package cluster

import "errors"

// Sentinel errors returned by the membership store.
var (
	// ErrDatabaseExists is returned when adding a database whose name is taken.
	ErrDatabaseExists = errors.New("database already exists")

	// ErrServerExists is returned when adding a server whose name is taken.
	ErrServerExists = errors.New("server already exists")

	// ErrNotMember is returned when marking a server as self that is not a
	// member of the database.
	ErrNotMember = errors.New("server is not a member of the database")
)
