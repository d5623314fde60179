package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/altafino/order-mail-extractor/internal/email/parser"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
)

// Refetcher loads attachment bytes for emails that were stored without
// them. It opens its own short session through the shared Mailbox, so it
// must not be called while a pass holds the inbox.
type Refetcher struct {
	mailbox *Mailbox
	logger  *slog.Logger
}

// NewRefetcher creates a Refetcher on top of mailbox
func NewRefetcher(mailbox *Mailbox, logger *slog.Logger) *Refetcher {
	return &Refetcher{mailbox: mailbox, logger: logger}
}

// EnsureFullBody fills in the body and attachment bytes of e by searching
// the mailbox for a message with the same subject and sender. Every
// failure wraps ErrRefetch.
func (r *Refetcher) EnsureFullBody(ctx context.Context, settings *types.Settings, e *models.Email) error {
	if !e.MissingAttachmentContent() {
		return nil
	}

	r.logger.Debug("re-fetching message for attachment content",
		"email_id", e.ID,
		"subject", e.Subject,
		"sender", e.SenderEmail)

	var msg *Message
	err := r.mailbox.Open(ctx, settings, func(s Session) error {
		var err error
		msg, err = s.RefetchByHeaders(ctx, e.Subject, e.SenderEmail)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefetch, err)
	}

	full, err := parser.Parse(msg.Raw, r.logger)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefetch, err)
	}

	e.Body = full.Body
	e.IsHTML = full.IsHTML
	if len(full.Attachments) == 0 {
		r.logger.Warn("re-fetched message has no attachments, keeping stored entries",
			"email_id", e.ID,
			"stored", len(e.Attachments))
		return nil
	}
	e.Attachments = full.Attachments

	r.logger.Info("re-fetched attachments",
		"email_id", e.ID,
		"attachments", len(e.Attachments))
	return nil
}
