package validation

import (
	"strings"
	"testing"

	"github.com/altafino/order-mail-extractor/internal/types"
)

func validSettings() *types.Settings {
	cfg := &types.Settings{}
	cfg.Meta.ID = "default"
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 30
	cfg.Server.WriteTimeout = 30
	cfg.Protocol = "imap"
	cfg.IMAP.Port = 993
	cfg.IMAP.Timeout = 30
	cfg.Attachments.MaxSizeMB = 25
	cfg.AI.Provider = "local"
	cfg.Storage.Type = "file"
	cfg.Storage.Path = "/tmp/archive"
	cfg.Database.Path = "/tmp/mail.db"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.Settings)
		wantErr string
	}{
		{name: "valid", mutate: func(*types.Settings) {}},
		{
			name:    "bad meta id",
			mutate:  func(c *types.Settings) { c.Meta.ID = "a b" },
			wantErr: "meta.id",
		},
		{
			name:    "unknown protocol",
			mutate:  func(c *types.Settings) { c.Protocol = "smtp" },
			wantErr: "protocol",
		},
		{
			name: "inverted date range is accepted",
			mutate: func(c *types.Settings) {
				c.DateRange.Enabled = true
				c.DateRange.Start = "2024-02-01"
				c.DateRange.End = "2024-01-01"
			},
		},
		{
			name: "bad date",
			mutate: func(c *types.Settings) {
				c.DateRange.Enabled = true
				c.DateRange.Start = "01/02/2024"
			},
			wantErr: "date_range.start",
		},
		{
			name:    "unknown ai provider",
			mutate:  func(c *types.Settings) { c.AI.Provider = "openai" },
			wantErr: "ai.provider",
		},
		{
			name:    "auto extract without ai",
			mutate:  func(c *types.Settings) { c.AI.AutoExtract = true },
			wantErr: "auto_extract",
		},
		{
			name:    "gdrive without credentials",
			mutate:  func(c *types.Settings) { c.Storage.Type = "gdrive" },
			wantErr: "credentials_file",
		},
		{
			name: "scheduling amount too large",
			mutate: func(c *types.Settings) {
				c.Scheduling.Enabled = true
				c.Scheduling.FrequencyEvery = "minute"
				c.Scheduling.FrequencyAmount = 90
				c.Scheduling.JobType = "plain"
			},
			wantErr: "must not exceed 60",
		},
		{
			name:   "dev log format",
			mutate:  func(c *types.Settings) { c.Logging.Format = "dev" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validSettings()
			tt.mutate(cfg)

			err := ValidateSettings(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
