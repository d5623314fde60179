package validation

import (
	"fmt"
	"time"

	"github.com/altafino/order-mail-extractor/internal/types"
)

// ValidateSettings checks a complete settings document. Defaults are
// expected to have been applied already.
func ValidateSettings(cfg *types.Settings) error {
	if err := validateMeta(cfg); err != nil {
		return fmt.Errorf("meta validation failed: %w", err)
	}

	if err := validateServer(cfg); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := validateMail(cfg); err != nil {
		return fmt.Errorf("mail validation failed: %w", err)
	}

	if err := validateAI(cfg); err != nil {
		return fmt.Errorf("ai validation failed: %w", err)
	}

	if err := validateStorage(cfg); err != nil {
		return fmt.Errorf("storage validation failed: %w", err)
	}

	if err := validateLogging(cfg); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	if err := validateScheduling(cfg); err != nil {
		return fmt.Errorf("scheduling validation failed: %w", err)
	}

	return nil
}

func validateMeta(cfg *types.Settings) error {
	if cfg.Meta.ID == "" {
		return fmt.Errorf("meta.id is required")
	}

	if !isValidID(cfg.Meta.ID) {
		return fmt.Errorf("meta.id contains invalid characters (use only alphanumeric, dash, underscore)")
	}

	return nil
}

func validateServer(cfg *types.Settings) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if cfg.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if cfg.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return nil
}

func validateMail(cfg *types.Settings) error {
	switch cfg.Protocol {
	case "imap", "pop3":
	default:
		return fmt.Errorf("protocol must be 'imap' or 'pop3'")
	}

	srv := cfg.MailServer()
	if srv.Port < 0 || srv.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535", cfg.Protocol)
	}

	if srv.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", cfg.Protocol)
	}

	if srv.OAuth2.Enabled {
		if cfg.Protocol != "imap" {
			return fmt.Errorf("oauth2 is only supported for imap")
		}
		switch srv.OAuth2.Provider {
		case "google", "microsoft":
		default:
			return fmt.Errorf("imap.oauth2.provider must be 'google' or 'microsoft'")
		}
		if srv.OAuth2.ClientID == "" {
			return fmt.Errorf("imap.oauth2.client_id is required when oauth2 is enabled")
		}
	}

	// An inverted range is tolerated here; the mailbox logs it when searching.
	if cfg.DateRange.Enabled {
		if cfg.DateRange.Start != "" {
			if _, err := time.Parse("2006-01-02", cfg.DateRange.Start); err != nil {
				return fmt.Errorf("date_range.start must be YYYY-MM-DD")
			}
		}
		if cfg.DateRange.End != "" {
			if _, err := time.Parse("2006-01-02", cfg.DateRange.End); err != nil {
				return fmt.Errorf("date_range.end must be YYYY-MM-DD")
			}
		}
	}

	if cfg.Attachments.MaxSizeMB <= 0 {
		return fmt.Errorf("attachments.max_size_mb must be positive")
	}

	return nil
}

// validateAI only checks the shape of the document. A cloud provider
// without a key is accepted here and rejected when a call is attempted.
func validateAI(cfg *types.Settings) error {
	switch cfg.AI.Provider {
	case "cloud", "local":
	default:
		return fmt.Errorf("ai.provider must be 'cloud' or 'local'")
	}

	if cfg.AI.AutoExtract && !cfg.AI.Enabled {
		return fmt.Errorf("ai.auto_extract requires ai.enabled")
	}

	return nil
}

func validateStorage(cfg *types.Settings) error {
	switch cfg.Storage.Type {
	case "file":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for file storage")
		}
	case "gdrive":
		if cfg.Storage.CredentialsFile == "" {
			return fmt.Errorf("storage.credentials_file is required for gdrive storage")
		}
	default:
		return fmt.Errorf("storage.type must be 'file' or 'gdrive'")
	}

	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if cfg.ErrorLogging.Enabled && cfg.ErrorLogging.StoragePath == "" {
		return fmt.Errorf("error_logging.storage_path is required when error logging is enabled")
	}

	return nil
}

func validateLogging(cfg *types.Settings) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
		"dev":  true,
	}

	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: text, json, dev")
	}

	return nil
}

func validateScheduling(cfg *types.Settings) error {
	if cfg.Scheduling.Enabled {
		if err := validateFrequency("scheduling", cfg.Scheduling.FrequencyEvery, cfg.Scheduling.FrequencyAmount); err != nil {
			return err
		}

		switch cfg.Scheduling.JobType {
		case "plain", "rule-preloaded":
		default:
			return fmt.Errorf("scheduling.job_type must be 'plain' or 'rule-preloaded'")
		}
	}

	if cfg.Cleanup.Enabled {
		if err := validateFrequency("cleanup", cfg.Cleanup.FrequencyEvery, cfg.Cleanup.FrequencyAmount); err != nil {
			return err
		}
		if cfg.Cleanup.RetentionDays < 1 {
			return fmt.Errorf("cleanup.retention_days must be greater than 0")
		}
	}

	return nil
}

func validateFrequency(section, every string, amount int) error {
	limits := map[string]int{
		"minute": 60,
		"hour":   24,
		"day":    31,
		"week":   52,
	}

	limit, ok := limits[every]
	if !ok {
		return fmt.Errorf("%s.frequency_every must be one of: minute, hour, day, week", section)
	}

	if amount < 1 {
		return fmt.Errorf("%s.frequency_amount must be greater than 0", section)
	}

	if amount > limit {
		return fmt.Errorf("%s.frequency_amount must not exceed %d for %s frequency", section, limit, every)
	}

	return nil
}

func isValidID(id string) bool {
	for _, r := range id {
		if !isValidIDChar(r) {
			return false
		}
	}
	return true
}

func isValidIDChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '-' ||
		r == '_'
}
