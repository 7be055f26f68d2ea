package domain

import (
	"time"
)

// JobType identifies the kind of work a job carries.
type JobType string

const (
	JobTypeAudioProcessing   JobType = "audio_processing"
	JobTypeTextProcessing    JobType = "text_processing"
	JobTypeTranscriptionOnly JobType = "transcription_only"
	JobTypeCacheWarming      JobType = "cache_warming"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is one unit of asynchronous work.
type Job struct {
	JobID        string         `json:"job_id"`
	JobType      JobType        `json:"job_type"`
	Status       JobStatus      `json:"status"`
	UserID       string         `json:"user_id"`
	InputData    map[string]any `json:"input_data,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	LastService  string         `json:"last_failure_service,omitempty"`
	LastCategory ErrorCategory  `json:"last_failure_category,omitempty"`
	QueueName    string         `json:"queue_name"`
	SessionID    string         `json:"session_id,omitempty"`
	TranscriptID string         `json:"transcript_id,omitempty"`
}

// QueueNameForType maps a job type to its processing queue.
// Transcription-only jobs share the default queue.
func QueueNameForType(t JobType) string {
	switch t {
	case JobTypeAudioProcessing:
		return "audio_processing"
	case JobTypeTextProcessing:
		return "text_processing"
	case JobTypeCacheWarming:
		return "cache_warming"
	default:
		return "default"
	}
}

// KnownQueues lists every queue the system drains.
func KnownQueues() []string {
	return []string{"audio_processing", "text_processing", "cache_warming", "default"}
}
