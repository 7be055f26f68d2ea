package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleAndPopDue(t *testing.T) {
	ctx := context.Background()
	rs := NewRetryStore(newTestClient(t))

	now := time.Now()
	require.NoError(t, rs.Schedule(ctx, "j1", now.Add(-time.Minute)))
	require.NoError(t, rs.Schedule(ctx, "j2", now.Add(-time.Second)))
	require.NoError(t, rs.Schedule(ctx, "j3", now.Add(time.Hour)))

	due, err := rs.PopDue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, []string{"j1", "j2"}, due)

	// future entry stays scheduled
	pending, err := rs.Pending(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, pending)

	// popped entries do not come back
	again, err := rs.PopDue(ctx, now)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestPopDueEmpty(t *testing.T) {
	rs := NewRetryStore(newTestClient(t))
	due, err := rs.PopDue(context.Background(), time.Now())
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestRemoveScheduledRetry(t *testing.T) {
	ctx := context.Background()
	rs := NewRetryStore(newTestClient(t))

	require.NoError(t, rs.Schedule(ctx, "j1", time.Now().Add(-time.Minute)))
	require.NoError(t, rs.Remove(ctx, "j1"))

	due, err := rs.PopDue(ctx, time.Now())
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestRescheduleMovesDueTime(t *testing.T) {
	ctx := context.Background()
	rs := NewRetryStore(newTestClient(t))

	now := time.Now()
	require.NoError(t, rs.Schedule(ctx, "j1", now.Add(-time.Minute)))
	require.NoError(t, rs.Schedule(ctx, "j1", now.Add(time.Hour)))

	due, err := rs.PopDue(ctx, now)
	require.NoError(t, err)
	require.Empty(t, due)

	pending, err := rs.Pending(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, pending)
}
