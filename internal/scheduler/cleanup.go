package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/altafino/order-mail-extractor/internal/errorlog"
	"github.com/altafino/order-mail-extractor/internal/tracking"
	"github.com/altafino/order-mail-extractor/internal/types"
)

// EmailPruner deletes stored emails older than a cutoff
type EmailPruner interface {
	DeleteEmailsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Cleaner prunes old emails, error journal files and seen records
type Cleaner struct {
	emails EmailPruner
	logger *slog.Logger
	now    func() time.Time
}

// NewCleaner creates a cleaner
func NewCleaner(emails EmailPruner, logger *slog.Logger) *Cleaner {
	return &Cleaner{emails: emails, logger: logger, now: time.Now}
}

// Run executes every cleanup step. A failing step does not prevent the
// others; their errors are joined.
func (c *Cleaner) Run(ctx context.Context, cfg *types.Settings) error {
	var errs []error

	if days := cfg.Cleanup.RetentionDays; days > 0 {
		cutoff := c.now().UTC().AddDate(0, 0, -days)
		n, err := c.emails.DeleteEmailsBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("emails: %w", err))
		} else {
			c.logger.Info("deleted old emails", "count", n, "before", cutoff)
		}
	}

	journal, err := errorlog.NewManager(cfg, c.logger)
	if err != nil {
		errs = append(errs, fmt.Errorf("error journal: %w", err))
	} else {
		if n, err := journal.CleanupOldErrors(); err != nil {
			errs = append(errs, fmt.Errorf("error journal: %w", err))
		} else if n > 0 {
			c.logger.Info("deleted old error journal files", "count", n)
		}
		journal.Close()
	}

	if cfg.Protocol == "pop3" {
		srv := cfg.MailServer()
		seen, err := tracking.NewManager(cfg.Tracking.StoragePath, srv.Server, srv.Username, c.logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("seen journal: %w", err))
		} else {
			if err := seen.CleanupOldRecords(cfg.Cleanup.RetentionDays); err != nil {
				errs = append(errs, err)
			}
			seen.Close()
		}
	}

	return errors.Join(errs...)
}
