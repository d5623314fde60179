package models

import "time"

// JobType selects the scheduling variant of a mailbox pass
type JobType string

const (
	JobPlain         JobType = "plain"
	JobRulePreloaded JobType = "rule-preloaded"
)

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// RunResult is the outcome of one ingestion pass
type RunResult struct {
	ProcessedCount int      `json:"processed_count"`
	SkippedCount   int      `json:"skipped_count"`
	Errors         []string `json:"errors"`
	Stopped        bool     `json:"stopped"`
}

// Job is one tracked pipeline run
type Job struct {
	ID               string     `json:"id"`
	Type             JobType    `json:"type"`
	Status           JobStatus  `json:"status"`
	Progress         int        `json:"progress"`
	CurrentOperation string     `json:"current_operation"`
	TotalEmails      int        `json:"total_emails"`
	ProcessedEmails  int        `json:"processed_emails"`
	Result           *RunResult `json:"result,omitempty"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Finished reports whether the job reached a terminal state
func (j *Job) Finished() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
