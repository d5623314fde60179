package config

import (
	"fmt"

	"dario.cat/mergo"
	"github.com/altafino/order-mail-extractor/internal/types"
)

// Defaults returns the baseline settings. Boolean switches default to false
// because the merge cannot tell an explicit false from an unset field.
func Defaults() *types.Settings {
	cfg := &types.Settings{}

	cfg.Meta.ID = "default"
	cfg.Meta.Name = "Order mail extractor"

	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 30
	cfg.Server.WriteTimeout = 30

	cfg.Protocol = "imap"
	cfg.IMAP.Port = 993
	cfg.IMAP.Mailbox = "INBOX"
	cfg.IMAP.Timeout = 30
	cfg.IMAP.OAuth2.TokenDir = "./data/tokens"
	cfg.POP3.Port = 995
	cfg.POP3.Timeout = 30

	cfg.Attachments.MaxSizeMB = 25

	cfg.AI.Provider = "local"
	cfg.AI.Cloud.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	cfg.AI.Cloud.Model = "gemini-1.5-flash"
	cfg.AI.Local.Endpoint = "http://localhost:11434"
	cfg.AI.Local.Model = "llama3"

	cfg.Classification.OrderKeywords = "order,purchase order,po number,bestellung"
	cfg.Classification.EstimateKeywords = "quote,estimate,quotation,angebot"

	cfg.Storage.Type = "file"
	cfg.Storage.Path = "./data/archive"

	cfg.Database.Path = "./data/mail.db"
	cfg.Tracking.StoragePath = "./data/tracking"

	cfg.ErrorLogging.StoragePath = "./data/errors"
	cfg.ErrorLogging.RetentionDays = 30

	cfg.Cleanup.FrequencyEvery = "day"
	cfg.Cleanup.FrequencyAmount = 1
	cfg.Cleanup.RetentionDays = 90

	cfg.Scheduling.FrequencyEvery = "minute"
	cfg.Scheduling.FrequencyAmount = 15
	cfg.Scheduling.JobType = "rule-preloaded"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Monitoring.MetricsPath = "/metrics"

	return cfg
}

// applyDefaults fills every zero-valued field of cfg from Defaults
func applyDefaults(cfg *types.Settings) error {
	if err := mergo.Merge(cfg, Defaults()); err != nil {
		return fmt.Errorf("failed to apply default settings: %w", err)
	}
	return nil
}
