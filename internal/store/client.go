// Package store persists jobs, queues, retry schedules and dead letter
// entries in Redis. Everything is keyed under a small set of prefixes
// so an operator can inspect the system with redis-cli.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medscribe/dispatch/internal/core/config"
)

// Client wraps the Redis connection shared by the job, retry and DLQ
// stores.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis wraps an existing connection, used by tests.
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func jobKey(jobID string) string {
	return fmt.Sprintf("jobs:%s", jobID)
}

func userJobsKey(userID string) string {
	return fmt.Sprintf("user_jobs:%s", userID)
}

func queueKey(name string) string {
	return fmt.Sprintf("queue:%s", name)
}

func dlqKey(queue string) string {
	return fmt.Sprintf("dlq:%s", queue)
}

const (
	retryScheduleKey = "retry_schedule"
	jobExpiryKey     = "job_expiry_set"
)
