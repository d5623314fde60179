package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/altafino/order-mail-extractor/internal/utility/u_io"
	"github.com/altafino/order-mail-extractor/internal/validation"
	yaml "gopkg.in/yaml.v3"
)

// ErrInvalidSettings is returned by Replace when validation fails
var ErrInvalidSettings = errors.New("invalid settings")

// Store caches the settings singleton and persists every replacement to
// disk before it becomes visible to readers.
type Store struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	current *types.Settings
}

// Load reads the settings file at path. A missing file is not an error: the
// defaults are used and written out so the user has something to edit.
func Load(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:   path,
		logger: logger,
	}

	cfg, err := loadFile(path)
	if os.IsNotExist(err) {
		logger.Warn("settings file not found, writing defaults", "path", path)
		cfg = Defaults()
		if err := writeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default settings: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load settings %s: %w", path, err)
	}

	if err := validation.ValidateSettings(cfg); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}

	s.current = cfg

	logger.Debug("loaded settings",
		"path", path,
		"protocol", cfg.Protocol,
		"server", cfg.MailServer().Server,
		"ai_enabled", cfg.AI.Enabled,
		"ai_provider", cfg.AI.Provider,
	)

	return s, nil
}

// Path returns the settings file location
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the cached settings
func (s *Store) Get() *types.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.current
	return &cp
}

// Replace validates next, writes it to disk and only then swaps it in
func (s *Store) Replace(next *types.Settings) error {
	if next == nil {
		return fmt.Errorf("settings must not be nil")
	}

	cfg := *next
	if err := applyDefaults(&cfg); err != nil {
		return err
	}

	if err := validation.ValidateSettings(&cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFile(s.path, &cfg); err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}

	s.current = &cfg
	s.logger.Info("settings replaced", "path", s.path)
	return nil
}

// Reload re-reads the settings file, keeping the cached copy on failure
func (s *Store) Reload() error {
	cfg, err := loadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to reload settings: %w", err)
	}

	if err := validation.ValidateSettings(cfg); err != nil {
		return fmt.Errorf("invalid settings after reload: %w", err)
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()

	return nil
}

func loadFile(path string) (*types.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so secrets can stay out of the file
	expanded := os.ExpandEnv(string(data))

	cfg := &types.Settings{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// writeFile writes through a temp file and rename so a crash never leaves a
// half-written settings file behind.
func writeFile(path string, cfg *types.Settings) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	if err := u_io.WriteFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	return nil
}
