// Package testing provides test utilities for the siridb-server library.
//
// It offers helpers for setting up test environments, particularly embedded
// NATS servers for beacon integration testing, following Go's convention of
// a dedicated testing package (similar to net/http/httptest).
//
// Example usage:
//
//	import (
//	    "testing"
//	    siritest "github.com/wang-shun/siridb-server/testing"
//	)
//
//	func TestBeacon(t *testing.T) {
//	    _, nc := siritest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
