package siridb

import "github.com/wang-shun/siridb-server/types"

// Re-export types from the types subpackage.
//
// This file provides a stable public API for the library's core types and
// interfaces using type aliases. Internal packages depend on the `types`
// subpackage without depending on the root package, avoiding import cycles,
// while users get convenient siridb.Status, siridb.Logger, etc.
type (
	Status           = types.Status
	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector
)

// Re-export Status constants from the types subpackage.
const (
	StatusPending   = types.StatusPending
	StatusRunning   = types.StatusRunning
	StatusCancelled = types.StatusCancelled
)
