// Package errorlog journals per-message failures of ingestion passes so
// they can be inspected after the job has finished.
package errorlog

import (
	"time"
)

// Stage names the pipeline step a message failed in
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageParse    Stage = "parse"
	StageClassify Stage = "classify"
	StagePersist  Stage = "persist"
	StageExtract  Stage = "extract"
)

// EmailError represents an error that occurred while processing one message
type EmailError struct {
	ID        string    `json:"id"`
	ConfigID  string    `json:"config_id"`
	JobID     string    `json:"job_id,omitempty"`
	Protocol  string    `json:"protocol"`
	Server    string    `json:"server"`
	Username  string    `json:"username"`
	UID       uint32    `json:"uid"`
	MessageID string    `json:"message_id,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	ErrorTime time.Time `json:"error_time"`
	Stage     Stage     `json:"stage"`
	ErrorMsg  string    `json:"error_message"`
}

// Filter selects journal entries. Empty fields match everything.
type Filter struct {
	JobID  string
	Stage  Stage
	Sender string
	Since  time.Time
}

func (f Filter) matches(e EmailError) bool {
	if f.JobID != "" && e.JobID != f.JobID {
		return false
	}
	if f.Stage != "" && e.Stage != f.Stage {
		return false
	}
	if f.Sender != "" && e.Sender != f.Sender {
		return false
	}
	if !f.Since.IsZero() && e.ErrorTime.Before(f.Since) {
		return false
	}
	return true
}

// Logger defines the interface for email error logging
type Logger interface {
	LogError(err EmailError) error
	GetErrors(filter Filter) ([]EmailError, error)
	// CleanupOldErrors removes entries older than retentionDays and
	// returns the number of journal files deleted.
	CleanupOldErrors(retentionDays int) (int, error)
	Close() error
}
