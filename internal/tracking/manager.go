package tracking

import (
	"fmt"
	"log/slog"
	"time"
)

// Manager handles seen-journal operations for one mail account
type Manager struct {
	server   string
	username string
	logger   *slog.Logger
	storage  Storage
}

// NewManager opens the journal stored below storagePath
func NewManager(storagePath, server, username string, logger *slog.Logger) (*Manager, error) {
	storage, err := NewFileStorage(storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracking storage: %w", err)
	}

	if err := storage.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracking storage: %w", err)
	}

	logger.Debug("initialized seen tracking", "storage_path", storagePath)

	return NewManagerWithStorage(storage, server, username, logger), nil
}

// NewManagerWithStorage wraps an initialized storage
func NewManagerWithStorage(storage Storage, server, username string, logger *slog.Logger) *Manager {
	return &Manager{
		server:   server,
		username: username,
		logger:   logger,
		storage:  storage,
	}
}

// Close cleans up resources
func (m *Manager) Close() error {
	return m.storage.Close()
}

// MarkSeen records uid as handled
func (m *Manager) MarkSeen(uid, subject string) error {
	record := SeenRecord{
		UID:      uid,
		Server:   m.server,
		Username: m.username,
		Subject:  subject,
		SeenAt:   time.Now().UTC(),
	}

	if err := m.storage.AddRecord(record); err != nil {
		m.logger.Error("failed to track message",
			"uid", uid,
			"error", err)
		return err
	}

	m.logger.Debug("tracked message", "uid", uid, "server", m.server)
	return nil
}

// IsSeen reports whether uid was handled before
func (m *Manager) IsSeen(uid string) (bool, error) {
	seen, err := m.storage.HasRecord(m.server, m.username, uid)
	if err != nil {
		m.logger.Error("failed to check seen journal",
			"uid", uid,
			"error", err)
		return false, err
	}
	return seen, nil
}

// CleanupOldRecords removes records older than the retention period
func (m *Manager) CleanupOldRecords(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}

	removed, err := m.storage.CleanupOldRecords(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean up seen journal: %w", err)
	}

	if removed > 0 {
		m.logger.Info("cleaned up seen journal",
			"removed", removed,
			"retention_days", retentionDays)
	}
	return nil
}
