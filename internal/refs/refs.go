// Package refs provides shared-ownership reference counting and the
// lock-then-copy-then-unlock snapshot pattern used by the membership store.
//
// A collection owns one reference to each of its members. Every snapshot taken
// from the collection holds one additional reference per member, so a member
// dropped from the collection while a snapshot is outstanding stays alive until
// the snapshot releases it. The count is the only mechanism that defers
// destruction; no lock is ever held across the work done with a snapshot.
package refs

import (
	"sync"
	"sync/atomic"
)

// Referent is implemented by values whose lifetime is tracked by a
// reference count.
type Referent interface {
	// Incref adds one reference.
	Incref()

	// Decref drops one reference, destroying the value when the count
	// reaches zero.
	Decref()
}

// Counter is an atomic reference count with a release callback.
//
// The zero Counter is not usable; call Init first. Counter must not be
// copied after Init.
type Counter struct {
	n       atomic.Int32
	release func()
}

// Init sets the release callback and establishes the initial reference,
// owned by the collection the value is a member of.
//
// Parameters:
//   - release: Called exactly once when the count reaches zero (may be nil)
func (c *Counter) Init(release func()) {
	c.release = release
	c.n.Store(1)
}

// Incref adds one reference. Safe for concurrent use.
func (c *Counter) Incref() {
	c.n.Add(1)
}

// Decref drops one reference. When the count reaches zero the release
// callback fires on the calling goroutine. Safe for concurrent use.
func (c *Counter) Decref() {
	if c.n.Add(-1) == 0 && c.release != nil {
		c.release()
	}
}

// Refs returns the current reference count.
//
// Intended for diagnostics and tests; the value may be stale by the time
// the caller observes it.
func (c *Counter) Refs() int32 {
	return c.n.Load()
}

// Snapshot produces a point-in-time ordered copy of a guarded collection,
// incrementing each member's reference count before the guard is released.
//
// The guard is held only for the O(len) copy, never across whatever work the
// caller performs with the snapshot. The returned slice is not live: later
// mutations of the source collection are not reflected.
//
// Every snapshot must eventually be handed to Release exactly once.
//
// Parameters:
//   - mu: Guard protecting items
//   - items: The guarded collection, read under mu
//
// Returns:
//   - []T: Ordered copy with one extra reference per member
func Snapshot[T Referent](mu sync.Locker, items *[]T) []T {
	mu.Lock()
	defer mu.Unlock()

	snap := make([]T, len(*items))
	copy(snap, *items)
	for _, item := range snap {
		item.Incref()
	}

	return snap
}

// Release drops the reference held by each member of a snapshot.
//
// Typically deferred immediately after taking the snapshot so that every
// exit path, including early returns, releases exactly once.
func Release[T Referent](snap []T) {
	for _, item := range snap {
		item.Decref()
	}
}
