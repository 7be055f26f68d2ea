package dlq

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/medscribe/dispatch/internal/core/domain"
	"github.com/medscribe/dispatch/internal/resilience/breaker"
	"github.com/medscribe/dispatch/internal/store"
)

type fixture struct {
	svc      *Service
	jobs     *store.JobStore
	entries  *store.DLQStore
	breakers *breaker.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	client := store.NewClientFromRedis(rdb)

	jobs := store.NewJobStore(client)
	entries := store.NewDLQStore(client, 2000)
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), slog.Default())
	return &fixture{
		svc:      New(entries, jobs, breakers, slog.Default()),
		jobs:     jobs,
		entries:  entries,
		breakers: breakers,
	}
}

func submitJob(t *testing.T, f *fixture, id string) *domain.Job {
	t.Helper()
	job := &domain.Job{
		JobID:      id,
		JobType:    domain.JobTypeAudioProcessing,
		Status:     domain.JobStatusQueued,
		UserID:     "u1",
		CreatedAt:  time.Now(),
		RetryCount: 3,
		MaxRetries: 3,
		QueueName:  "audio_processing",
		SessionID:  "s1",
	}
	require.NoError(t, f.jobs.Submit(context.Background(), job))
	return job
}

func TestRecordBuildsEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := submitJob(t, f, "j1")

	err := f.svc.Record(ctx, job, Failure{
		Reason:      "retries exhausted",
		Err:         errors.New("connection refused"),
		Category:    domain.CategoryTransientNetwork,
		ServiceName: "transcription",
	})
	require.NoError(t, err)

	entries, err := f.svc.List(ctx, "audio_processing", ListFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.Equal(t, "j1", e.JobID)
	require.Equal(t, domain.CategoryTransientNetwork, e.ErrorCategory)
	require.Equal(t, "connection refused", e.OriginalError)
	require.Equal(t, string(breaker.StateClosed), e.CircuitBreakerState)
	require.True(t, e.RetryEligible)
	require.NotNil(t, e.NextRetryEligibleAt)
	// 30 minute cooldown for transient network failures
	require.WithinDuration(t, e.FailedAt.Add(30*time.Minute), *e.NextRetryEligibleAt, time.Second)
	require.Equal(t, "s1", e.JobContext["session_id"])
}

func TestEligibilityByCategory(t *testing.T) {
	cases := []struct {
		category domain.ErrorCategory
		eligible bool
	}{
		{domain.CategoryTransientNetwork, true},
		{domain.CategoryRateLimited, true},
		{domain.CategoryServiceUnavailable, true},
		{domain.CategoryResourceExhaustion, true},
		{domain.CategoryValidation, false},
		{domain.CategoryPermanent, false},
		{domain.CategoryAuthentication, false},
		{domain.CategoryUnknown, false},
	}
	for _, tc := range cases {
		if got := requeueEligible(tc.category, ""); got != tc.eligible {
			t.Errorf("%s: eligible = %v, want %v", tc.category, got, tc.eligible)
		}
	}
}

func TestOpenBreakerBlocksEligibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := submitJob(t, f, "j1")
	f.breakers.ForceOpen("transcription")

	require.NoError(t, f.svc.Record(ctx, job, Failure{
		Reason:      "retries exhausted",
		Err:         errors.New("connection refused"),
		Category:    domain.CategoryTransientNetwork,
		ServiceName: "transcription",
	}))

	entries, err := f.svc.List(ctx, "audio_processing", ListFilter{})
	require.NoError(t, err)
	require.False(t, entries[0].RetryEligible)
	require.Nil(t, entries[0].NextRetryEligibleAt)
}

func TestRequeueResetsRetryBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := submitJob(t, f, "j1")

	// drain the queue so the requeue push is observable
	_, err := f.jobs.Claim(ctx, "audio_processing")
	require.NoError(t, err)

	require.NoError(t, f.svc.Record(ctx, job, Failure{
		Reason:   "retries exhausted",
		Err:      errors.New("connection refused"),
		Category: domain.CategoryTransientNetwork,
	}))

	// still cooling down
	err = f.svc.Requeue(ctx, "audio_processing", "j1", false)
	require.ErrorIs(t, err, ErrNotEligible)

	// skip past the cooldown
	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, f.svc.Requeue(ctx, "audio_processing", "j1", false))

	got, err := f.jobs.Get(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusQueued, got.Status)
	require.Equal(t, 0, got.RetryCount)

	entries, err := f.svc.List(ctx, "audio_processing", ListFilter{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestForceRequeueBypassesChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := submitJob(t, f, "j1")
	_, err := f.jobs.Claim(ctx, "audio_processing")
	require.NoError(t, err)

	require.NoError(t, f.svc.Record(ctx, job, Failure{
		Reason:   "validation failure",
		Err:      errors.New("malformed input"),
		Category: domain.CategoryValidation,
	}))

	require.ErrorIs(t, f.svc.Requeue(ctx, "audio_processing", "j1", false), ErrNotEligible)
	require.NoError(t, f.svc.Requeue(ctx, "audio_processing", "j1", true))
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := submitJob(t, f, "j1")

	require.NoError(t, f.svc.Record(ctx, job, Failure{
		Reason:   "permanent",
		Err:      errors.New("boom"),
		Category: domain.CategoryPermanent,
	}))
	require.NoError(t, f.svc.Discard(ctx, "audio_processing", "j1"))
	require.ErrorIs(t, f.svc.Discard(ctx, "audio_processing", "j1"), store.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i, cat := range []domain.ErrorCategory{
		domain.CategoryTransientNetwork,
		domain.CategoryValidation,
		domain.CategoryRateLimited,
	} {
		job := submitJob(t, f, string(rune('a'+i)))
		require.NoError(t, f.svc.Record(ctx, job, Failure{Reason: "r", Err: errors.New("e"), Category: cat}))
	}

	byCat, err := f.svc.List(ctx, "audio_processing", ListFilter{Category: domain.CategoryValidation})
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	require.Equal(t, "b", byCat[0].JobID)

	eligible, err := f.svc.List(ctx, "audio_processing", ListFilter{EligibleOnly: true})
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	for _, e := range eligible {
		require.True(t, e.RetryEligible)
	}

	capped, err := f.svc.List(ctx, "audio_processing", ListFilter{EligibleOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, capped, 1)
}

func TestRetryEligibleScan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cooled := submitJob(t, f, "cooled")
	require.NoError(t, f.svc.Record(ctx, cooled, Failure{
		Reason: "r", Err: errors.New("connection refused"),
		Category: domain.CategoryTransientNetwork, ServiceName: "transcription",
	}))
	blocked := submitJob(t, f, "blocked")
	require.NoError(t, f.svc.Record(ctx, blocked, Failure{
		Reason: "r", Err: errors.New("connection refused"),
		Category: domain.CategoryTransientNetwork, ServiceName: "agent",
	}))
	never := submitJob(t, f, "never")
	require.NoError(t, f.svc.Record(ctx, never, Failure{
		Reason: "r", Err: errors.New("malformed input"),
		Category: domain.CategoryValidation,
	}))

	// nothing eligible while every cooldown is still running
	got, err := f.svc.RetryEligible(ctx, "audio_processing")
	require.NoError(t, err)
	require.Empty(t, got)

	// past cooldown, but the agent breaker has since opened
	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	f.breakers.ForceOpen("agent")

	got, err = f.svc.RetryEligible(ctx, "audio_processing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "cooled", got[0].JobID)
}

func TestRequeueEligibleDrains(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, id := range []string{"j1", "j2"} {
		job := submitJob(t, f, id)
		_, err := f.jobs.Claim(ctx, "audio_processing")
		require.NoError(t, err)
		require.NoError(t, f.svc.Record(ctx, job, Failure{
			Reason: "r", Err: errors.New("connection refused"),
			Category: domain.CategoryTransientNetwork,
		}))
	}
	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	n, err := f.svc.RequeueEligible(ctx, "audio_processing")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	entries, err := f.svc.List(ctx, "audio_processing", ListFilter{})
	require.NoError(t, err)
	require.Empty(t, entries)

	for _, id := range []string{"j1", "j2"} {
		got, err := f.jobs.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.JobStatusQueued, got.Status)
		require.Equal(t, 0, got.RetryCount)
	}
}

func TestQueueStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i, cat := range []domain.ErrorCategory{
		domain.CategoryTransientNetwork,
		domain.CategoryTransientNetwork,
		domain.CategoryValidation,
	} {
		job := submitJob(t, f, string(rune('a'+i)))
		require.NoError(t, f.svc.Record(ctx, job, Failure{Reason: "r", Err: errors.New("e"), Category: cat}))
	}

	st, err := f.svc.QueueStats(ctx, "audio_processing")
	require.NoError(t, err)
	require.EqualValues(t, 3, st.Depth)
	require.Equal(t, 2, st.Eligible)
	require.Equal(t, 2, st.ByCategory[domain.CategoryTransientNetwork])
	require.Equal(t, 1, st.ByCategory[domain.CategoryValidation])
}
