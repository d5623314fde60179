// Package tracking records which POP3 messages have been handled. POP3 has
// no \Seen flag, so the journal of UIDLs stands in for it.
package tracking

import (
	"errors"
	"time"
)

// SeenRecord marks one message as handled
type SeenRecord struct {
	UID      string    `json:"uid"`
	Server   string    `json:"server"`
	Username string    `json:"username"`
	Subject  string    `json:"subject,omitempty"`
	SeenAt   time.Time `json:"seen_at"`
}

// Storage defines the interface for the seen journal
type Storage interface {
	// Initialize prepares the storage for use
	Initialize() error

	// Close cleans up any resources used by the storage
	Close() error

	// AddRecord marks a message as seen
	AddRecord(record SeenRecord) error

	// HasRecord reports whether the message was marked as seen
	HasRecord(server, username, uid string) (bool, error)

	// CleanupOldRecords removes records older than the specified retention period
	CleanupOldRecords(retentionDays int) (int, error)
}

// Common errors
var (
	ErrStorageNotInitialized = errors.New("storage not initialized")
)
