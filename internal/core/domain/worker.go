package domain

import "time"

// WorkerStatus is the coarse state a worker reports in its heartbeat.
type WorkerStatus string

const (
	WorkerStatusIdle       WorkerStatus = "idle"
	WorkerStatusProcessing WorkerStatus = "processing"
	WorkerStatusStopped    WorkerStatus = "stopped"
	WorkerStatusFailed     WorkerStatus = "failed"
)

// WorkerHealth is one worker's most recent heartbeat snapshot.
type WorkerHealth struct {
	WorkerID            string       `json:"worker_id"`
	QueueName           string       `json:"queue_name"`
	Status              WorkerStatus `json:"status"`
	LastHeartbeat       time.Time    `json:"last_heartbeat"`
	JobsProcessed       int64        `json:"jobs_processed"`
	JobsFailed          int64        `json:"jobs_failed"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	CurrentJobID        string       `json:"current_job_id,omitempty"`
	AvgProcessingMillis int64        `json:"avg_processing_millis"`
	StartedAt           time.Time    `json:"started_at"`
}
