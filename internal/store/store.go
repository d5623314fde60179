// Package store persists emails and rules.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
)

// ErrNotFound is returned when a row with the given id does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by AddEmail when an email with the same
// Message-ID is already stored
var ErrDuplicate = errors.New("duplicate message")

// ErrInvalidRule is returned by AddRule for an empty pattern or unknown type
var ErrInvalidRule = errors.New("invalid rule")

// EmailFilter narrows GetEmails. Zero values match everything.
type EmailFilter struct {
	Status         models.EmailStatus
	Classification models.Classification
	Limit          int
}

// Store is the data store used by the pipeline, the job runner and the API
type Store interface {
	GetEmails(ctx context.Context, filter EmailFilter) ([]models.Email, error)
	GetEmail(ctx context.Context, id string) (*models.Email, error)
	AddEmail(ctx context.Context, email *models.Email) error
	EmailExists(ctx context.Context, messageID string) (bool, error)
	UpdateEmail(ctx context.Context, id string, patch models.EmailPatch) error
	DeleteEmail(ctx context.Context, id string) error
	DeleteEmailsBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteEmailsFromSender(ctx context.Context, pattern string) (int64, error)

	GetRules(ctx context.Context) ([]models.Rule, error)
	AddRule(ctx context.Context, rule *models.Rule) error
	DeleteRule(ctx context.Context, id string) error

	GetSettings() *types.Settings
}

// SettingsSource supplies the current settings snapshot
type SettingsSource interface {
	Get() *types.Settings
}
