package domain

import "time"

// DLQEntry is the record written to a dead letter queue when a job
// exhausts its retries or fails with a non-retryable error.
type DLQEntry struct {
	JobID               string         `json:"job_id"`
	UserID              string         `json:"user_id"`
	JobType             JobType        `json:"job_type"`
	QueueName           string         `json:"queue_name"`
	FailedAt            time.Time      `json:"failed_at"`
	RetryAttempts       int            `json:"retry_attempts"`
	MaxRetries          int            `json:"max_retries"`
	Reason              string         `json:"reason"`
	OriginalError       string         `json:"original_error"`
	ErrorCategory       ErrorCategory  `json:"error_category"`
	ServiceName         string         `json:"service_name,omitempty"`
	CircuitBreakerState string         `json:"circuit_breaker_state,omitempty"`
	ErrorClass          string         `json:"error_class,omitempty"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	RetryEligible       bool           `json:"retry_eligible"`
	NextRetryEligibleAt *time.Time     `json:"next_retry_eligible_at,omitempty"`
	JobContext          map[string]any `json:"job_context,omitempty"`
}
