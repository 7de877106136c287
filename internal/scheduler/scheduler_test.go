package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDue(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 10, 15, 0, 0, time.UTC)

	require.NoError(t, s.Schedule(ctx, Task{ID: "a", Kind: "checkin:close", FireAt: now.Add(-time.Minute)}))
	require.NoError(t, s.Schedule(ctx, Task{ID: "b", Kind: "checkin:close", FireAt: now}))
	require.NoError(t, s.Schedule(ctx, Task{ID: "c", Kind: "checkin:close", FireAt: now.Add(time.Minute)}))

	due, err := s.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].ID)
	assert.Equal(t, "b", due[1].ID)
}

func TestInMemoryDoneRemoves(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	now := time.Now()

	task := Task{ID: "a", Kind: "checkin:close", FireAt: now.Add(-time.Second)}
	require.NoError(t, s.Schedule(ctx, task))

	due, err := s.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, s.Done(ctx, task))
	due, err = s.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestInMemoryRescheduleSameKey(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Schedule(ctx, Task{ID: "a", Kind: "checkin:close", FireAt: now.Add(time.Hour)}))
	require.NoError(t, s.Schedule(ctx, Task{ID: "a", Kind: "checkin:close", FireAt: now.Add(-time.Second)}))

	due, err := s.Due(ctx, now)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestSplitMember(t *testing.T) {
	kind, id := splitMember("checkin:close|abc-123")
	assert.Equal(t, "checkin:close", kind)
	assert.Equal(t, "abc-123", id)

	kind, id = splitMember("bare")
	assert.Equal(t, "", kind)
	assert.Equal(t, "bare", id)
}
