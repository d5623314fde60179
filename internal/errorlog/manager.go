package errorlog

import (
	"fmt"
	"log/slog"

	"github.com/altafino/order-mail-extractor/internal/types"
)

// DefaultRetentionDays applies when the settings leave retention unset
const DefaultRetentionDays = 30

// Manager fills in the mailbox identity and forwards to the configured
// journal. With error logging disabled every call is a no-op.
type Manager struct {
	configID      string
	protocol      string
	server        string
	username      string
	retentionDays int
	logger        *slog.Logger
	impl          Logger
}

// NewManager creates a new error logging manager
func NewManager(settings *types.Settings, logger *slog.Logger) (*Manager, error) {
	srv := settings.MailServer()
	m := &Manager{
		configID:      settings.Meta.ID,
		protocol:      settings.Protocol,
		server:        srv.Server,
		username:      srv.Username,
		retentionDays: settings.ErrorLogging.RetentionDays,
		logger:        logger,
		impl:          noopLogger{},
	}
	if m.retentionDays <= 0 {
		m.retentionDays = DefaultRetentionDays
	}

	if !settings.ErrorLogging.Enabled {
		logger.Debug("email error logging is disabled")
		return m, nil
	}

	impl, err := NewFileLogger(settings.ErrorLogging.StoragePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize error logger: %w", err)
	}
	m.impl = impl
	return m, nil
}

// NewNoopManager returns a manager that drops every entry
func NewNoopManager(logger *slog.Logger) *Manager {
	return &Manager{retentionDays: DefaultRetentionDays, logger: logger, impl: noopLogger{}}
}

// NewManagerWithLogger wraps an existing journal implementation
func NewManagerWithLogger(impl Logger, settings *types.Settings, logger *slog.Logger) *Manager {
	srv := settings.MailServer()
	return &Manager{
		configID:      settings.Meta.ID,
		protocol:      settings.Protocol,
		server:        srv.Server,
		username:      srv.Username,
		retentionDays: DefaultRetentionDays,
		logger:        logger,
		impl:          impl,
	}
}

// LogError records a message failure. Journal write errors are logged and
// swallowed since the failure itself is already reported to the caller.
func (m *Manager) LogError(e EmailError) {
	if e.ConfigID == "" {
		e.ConfigID = m.configID
	}
	if e.Protocol == "" {
		e.Protocol = m.protocol
	}
	if e.Server == "" {
		e.Server = m.server
	}
	if e.Username == "" {
		e.Username = m.username
	}

	if err := m.impl.LogError(e); err != nil {
		m.logger.Warn("failed to journal email error",
			"uid", e.UID,
			"stage", e.Stage,
			"error", err)
	}
}

// GetErrors retrieves journal entries matching filter
func (m *Manager) GetErrors(filter Filter) ([]EmailError, error) {
	return m.impl.GetErrors(filter)
}

// CleanupOldErrors removes entries older than the configured retention
func (m *Manager) CleanupOldErrors() (int, error) {
	return m.impl.CleanupOldErrors(m.retentionDays)
}

// Close releases any resources used by the logger
func (m *Manager) Close() error {
	return m.impl.Close()
}

type noopLogger struct{}

func (noopLogger) LogError(EmailError) error { return nil }
func (noopLogger) GetErrors(Filter) ([]EmailError, error) { return nil, nil }
func (noopLogger) CleanupOldErrors(int) (int, error) { return 0, nil }
func (noopLogger) Close() error { return nil }
