package checkin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowClosed(t *testing.T) {
	closedAt := time.Date(2025, 3, 10, 10, 15, 0, 0, time.UTC)
	active := Session{Status: StatusActive, ClosedAt: closedAt}

	assert.False(t, active.WindowClosed(closedAt.Add(-time.Minute)))
	assert.False(t, active.WindowClosed(closedAt)) // boundary is inclusive
	assert.True(t, active.WindowClosed(closedAt.Add(time.Second)))

	// A closed status shuts the window regardless of time.
	closed := Session{Status: StatusClosed, ClosedAt: closedAt}
	assert.True(t, closed.WindowClosed(closedAt.Add(-time.Hour)))
}
