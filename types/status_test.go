package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	t.Run("known statuses", func(t *testing.T) {
		require.Equal(t, "Pending", StatusPending.String())
		require.Equal(t, "Running", StatusRunning.String())
		require.Equal(t, "Cancelled", StatusCancelled.String())
	})

	t.Run("unknown status", func(t *testing.T) {
		require.Equal(t, "Unknown", Status(99).String())
	})
}
