// Package types defines the shared interfaces and enums used across the
// siridb-server cluster-health library.
//
// It is a leaf package: internal packages depend on it without depending on
// the root siridb package, which re-exports the definitions users need. This
// keeps the dependency graph acyclic while still offering convenient
// siridb.Status, siridb.Logger, etc. aliases at the root.
package types
