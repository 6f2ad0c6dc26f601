package types

// Status represents the heartbeat scheduler's observable lifecycle state.
//
// The scheduler starts in StatusPending, flips to StatusRunning while a
// traversal is in flight, and returns to StatusPending when it completes.
// StatusCancelled is terminal.
type Status int32

// Scheduler status values.
const (
	// StatusPending means the scheduler is waiting for the next tick.
	StatusPending Status = iota

	// StatusRunning means a cluster traversal is in flight.
	StatusRunning

	// StatusCancelled means the scheduler was cancelled and will never
	// run again.
	StatusCancelled
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}
