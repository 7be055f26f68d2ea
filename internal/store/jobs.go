package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/medscribe/dispatch/internal/core/domain"
)

var (
	// ErrNotFound is returned when a job does not exist or the caller
	// does not own it.
	ErrNotFound = errors.New("job not found")
	// ErrNotCancellable is returned when cancelling a job that already
	// left the queue.
	ErrNotCancellable = errors.New("job is no longer cancellable")
	// ErrTerminal is returned when completing or failing a job that
	// already reached a terminal status, e.g. cancelled mid-flight.
	ErrTerminal = errors.New("job already terminal")
)

// jobRetention is how long finished and unfinished jobs stay readable.
const jobRetention = 24 * time.Hour

// JobStore persists jobs and drives the per-queue work lists.
type JobStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewJobStore creates a job store on the shared client.
func NewJobStore(c *Client) *JobStore {
	return &JobStore{rdb: c.rdb, now: time.Now}
}

// Submit stores a job and pushes it onto its queue.
func (s *JobStore) Submit(ctx context.Context, job *domain.Job) error {
	if err := s.save(ctx, job); err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, userJobsKey(job.UserID), job.JobID)
	pipe.RPush(ctx, queueKey(job.QueueName), job.JobID)
	pipe.ZAdd(ctx, jobExpiryKey, redis.Z{
		Score:  float64(job.CreatedAt.Add(jobRetention).UnixMilli()),
		Member: job.JobID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Get loads a job by ID.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job domain.Job
	if err := sonic.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// GetOwned loads a job and verifies ownership. A mismatch reports
// ErrNotFound so callers cannot probe other users' job IDs.
func (s *JobStore) GetOwned(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrNotFound
	}
	return job, nil
}

// Claim pops the next queued job and marks it processing. Jobs whose
// record expired or that already left the queued state are skipped.
func (s *JobStore) Claim(ctx context.Context, queue string) (*domain.Job, error) {
	for {
		jobID, err := s.rdb.LPop(ctx, queueKey(queue)).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to pop queue: %w", err)
		}

		job, err := s.Get(ctx, jobID)
		if errors.Is(err, ErrNotFound) {
			continue // record expired while queued
		}
		if err != nil {
			return nil, err
		}
		if job.Status != domain.JobStatusQueued {
			continue // cancelled or already handled
		}

		started := s.now()
		job.Status = domain.JobStatusProcessing
		job.StartedAt = &started
		if err := s.save(ctx, job); err != nil {
			// put the ID back so the job is not stranded off-queue
			// with a record that still says queued
			s.rdb.LPush(ctx, queueKey(queue), jobID)
			return nil, err
		}
		return job, nil
	}
}

// Complete marks a job finished with its result.
func (s *JobStore) Complete(ctx context.Context, jobID string, result map[string]any) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrTerminal
	}
	done := s.now()
	job.Status = domain.JobStatusCompleted
	job.CompletedAt = &done
	job.Result = result
	job.ErrorMessage = ""
	return s.finalize(ctx, job)
}

// Fail marks a job terminally failed.
func (s *JobStore) Fail(ctx context.Context, jobID, errMsg string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrTerminal
	}
	done := s.now()
	job.Status = domain.JobStatusFailed
	job.CompletedAt = &done
	job.ErrorMessage = errMsg
	return s.finalize(ctx, job)
}

// Cancel cancels a queued job owned by userID. Processing or finished
// jobs cannot be cancelled.
func (s *JobStore) Cancel(ctx context.Context, jobID, userID string) error {
	job, err := s.GetOwned(ctx, jobID, userID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusQueued {
		return ErrNotCancellable
	}
	done := s.now()
	job.Status = domain.JobStatusCancelled
	job.CompletedAt = &done
	return s.finalize(ctx, job)
}

// Requeue pushes an existing job back onto its queue for another
// attempt, resetting it to queued.
func (s *JobStore) Requeue(ctx context.Context, job *domain.Job) error {
	job.Status = domain.JobStatusQueued
	job.StartedAt = nil
	job.CompletedAt = nil
	if err := s.save(ctx, job); err != nil {
		return err
	}
	if err := s.rdb.RPush(ctx, queueKey(job.QueueName), job.JobID).Err(); err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return nil
}

// Update persists in-place changes such as a bumped retry count.
func (s *JobStore) Update(ctx context.Context, job *domain.Job) error {
	return s.save(ctx, job)
}

// UserJobs returns all jobs belonging to a user, newest first.
func (s *JobStore) UserJobs(ctx context.Context, userID string) ([]*domain.Job, error) {
	ids, err := s.rdb.SMembers(ctx, userJobsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.rdb.SRem(ctx, userJobsKey(userID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	for i := 1; i < len(jobs); i++ {
		for j := i; j > 0 && jobs[j].CreatedAt.After(jobs[j-1].CreatedAt); j-- {
			jobs[j], jobs[j-1] = jobs[j-1], jobs[j]
		}
	}
	return jobs, nil
}

// QueueDepth returns the number of jobs waiting in a queue.
func (s *JobStore) QueueDepth(ctx context.Context, queue string) (int64, error) {
	n, err := s.rdb.LLen(ctx, queueKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return n, nil
}

// CleanupExpired removes job records past their retention window and
// returns how many were deleted.
func (s *JobStore) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := fmt.Sprintf("%d", s.now().UnixMilli())
	ids, err := s.rdb.ZRangeByScore(ctx, jobExpiryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan expired jobs: %w", err)
	}

	removed := 0
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err == nil {
			s.rdb.SRem(ctx, userJobsKey(job.UserID), id)
			s.rdb.LRem(ctx, queueKey(job.QueueName), 0, id)
		}
		s.rdb.Del(ctx, jobKey(id))
		s.rdb.ZRem(ctx, jobExpiryKey, id)
		removed++
	}
	return removed, nil
}

// save serializes and stores the job record.
func (s *JobStore) save(ctx context.Context, job *domain.Job) error {
	data, err := sonic.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := s.rdb.Set(ctx, jobKey(job.JobID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// finalize saves a terminal job and removes it from its queue list so
// stale entries cannot be claimed.
func (s *JobStore) finalize(ctx context.Context, job *domain.Job) error {
	if err := s.save(ctx, job); err != nil {
		return err
	}
	if err := s.rdb.LRem(ctx, queueKey(job.QueueName), 0, job.JobID).Err(); err != nil {
		return fmt.Errorf("failed to remove job from queue: %w", err)
	}
	return nil
}
