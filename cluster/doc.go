// Package cluster holds the node's view of cluster membership: the set of
// known databases and, per database, the set of peer servers belonging to it.
//
// The collections are mutex-guarded and ordered by insertion. The guards are
// held only long enough to copy references out; all work on the members
// (notably reconnect attempts, which are real network I/O) happens against
// ref-held snapshots so that unrelated mutations, such as dropping a database,
// are never blocked behind a slow connect.
//
// Lifetimes are tracked by reference counts. A database or server removed
// from its collection while a snapshot still holds it stays alive until the
// snapshot releases its reference; destruction happens only at count zero.
package cluster
