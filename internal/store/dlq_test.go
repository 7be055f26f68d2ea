package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medscribe/dispatch/internal/core/domain"
)

func makeEntry(jobID string, failedAt time.Time) *domain.DLQEntry {
	return &domain.DLQEntry{
		JobID:         jobID,
		UserID:        "u1",
		JobType:       domain.JobTypeAudioProcessing,
		QueueName:     "audio_processing",
		FailedAt:      failedAt,
		RetryAttempts: 3,
		MaxRetries:    3,
		Reason:        "retries exhausted",
		OriginalError: "connection refused",
		ErrorCategory: domain.CategoryTransientNetwork,
		ServiceName:   "transcription",
		RetryEligible: true,
		JobContext:    map[string]any{"session_id": "s1"},
	}
}

func TestPushAndList(t *testing.T) {
	ctx := context.Background()
	ds := NewDLQStore(newTestClient(t), 100)

	require.NoError(t, ds.Push(ctx, makeEntry("j1", time.Now().Add(-time.Hour))))
	require.NoError(t, ds.Push(ctx, makeEntry("j2", time.Now())))

	entries, err := ds.List(ctx, "audio_processing", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// newest first
	require.Equal(t, "j2", entries[0].JobID)
	require.Equal(t, "j1", entries[1].JobID)

	limited, err := ds.List(ctx, "audio_processing", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	depth, err := ds.Depth(ctx, "audio_processing")
	require.NoError(t, err)
	require.EqualValues(t, 2, depth)
}

func TestCapTrimsOldest(t *testing.T) {
	ctx := context.Background()
	ds := NewDLQStore(newTestClient(t), 3)

	for i := 0; i < 5; i++ {
		require.NoError(t, ds.Push(ctx, makeEntry(fmt.Sprintf("j%d", i), time.Now())))
	}

	entries, err := ds.List(ctx, "audio_processing", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "j4", entries[0].JobID)
	require.Equal(t, "j2", entries[2].JobID)
}

func TestFindAndRemove(t *testing.T) {
	ctx := context.Background()
	ds := NewDLQStore(newTestClient(t), 100)
	require.NoError(t, ds.Push(ctx, makeEntry("j1", time.Now())))
	require.NoError(t, ds.Push(ctx, makeEntry("j2", time.Now())))

	found, err := ds.Find(ctx, "audio_processing", "j1")
	require.NoError(t, err)
	require.Equal(t, "s1", found.JobContext["session_id"])

	_, err = ds.Find(ctx, "audio_processing", "nope")
	require.ErrorIs(t, err, ErrNotFound)

	removed, err := ds.Remove(ctx, "audio_processing", "j1")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = ds.Remove(ctx, "audio_processing", "j1")
	require.NoError(t, err)
	require.False(t, removed)

	entries, err := ds.List(ctx, "audio_processing", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "j2", entries[0].JobID)
}

func TestPruneExpired(t *testing.T) {
	ctx := context.Background()
	ds := NewDLQStore(newTestClient(t), 100)

	now := time.Now()
	require.NoError(t, ds.Push(ctx, makeEntry("old1", now.Add(-15*24*time.Hour))))
	require.NoError(t, ds.Push(ctx, makeEntry("old2", now.Add(-20*24*time.Hour))))
	require.NoError(t, ds.Push(ctx, makeEntry("fresh", now)))

	pruned, err := ds.PruneExpired(ctx, "audio_processing", now.Add(-14*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, pruned)

	entries, err := ds.List(ctx, "audio_processing", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "fresh", entries[0].JobID)
}
