// Package email talks to the mail server. A Mailbox hands out one Session
// at a time; IMAP and POP3 sessions implement the same interface.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/altafino/order-mail-extractor/internal/types"
)

// Criteria restricts a search. Zero times mean no bound.
type Criteria struct {
	UnseenOnly bool
	Since      time.Time
	Before     time.Time
}

// Envelope is the header summary of one message
type Envelope struct {
	UID         uint32
	MessageID   string
	Subject     string
	From        string
	SenderEmail string
	Date        time.Time
}

// Message is one fully fetched message. Err is set instead of Raw when this
// single message could not be retrieved.
type Message struct {
	UID uint32
	Raw []byte
	Err error
}

// Session is an authenticated connection with the inbox selected
type Session interface {
	Search(ctx context.Context, criteria Criteria) ([]uint32, error)
	FetchEnvelopes(ctx context.Context, uids []uint32) ([]Envelope, error)
	// FetchFull streams the full messages to fn in batches. Returning ErrStop
	// from fn ends the stream without error; any other error aborts it.
	FetchFull(ctx context.Context, uids []uint32, fn func(Message) error) error
	MarkSeen(ctx context.Context, uid uint32) error
	RefetchByHeaders(ctx context.Context, subject, sender string) (*Message, error)
}

// Conn is a Session that must be closed (logout) after use
type Conn interface {
	Session
	Close() error
}

// DialFunc opens a connection for the configured protocol
type DialFunc func(ctx context.Context, settings *types.Settings, logger *slog.Logger) (Conn, error)

// Mailbox serializes access to the inbox. Share one Mailbox per process so
// that at most one session is open at any time.
type Mailbox struct {
	lock   chan struct{}
	dial   DialFunc
	logger *slog.Logger
}

// NewMailbox creates a Mailbox that dials IMAP or POP3 based on settings
func NewMailbox(logger *slog.Logger) *Mailbox {
	return NewMailboxWithDialer(Dial, logger)
}

// NewMailboxWithDialer creates a Mailbox with a custom dialer
func NewMailboxWithDialer(dial DialFunc, logger *slog.Logger) *Mailbox {
	return &Mailbox{
		lock:   make(chan struct{}, 1),
		dial:   dial,
		logger: logger,
	}
}

// Dial connects with the protocol named in settings
func Dial(ctx context.Context, settings *types.Settings, logger *slog.Logger) (Conn, error) {
	switch settings.Protocol {
	case "pop3":
		return dialPOP3(ctx, settings, logger)
	case "imap", "":
		return dialIMAP(ctx, settings, logger)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", settings.Protocol)
	}
}

// Open acquires the inbox lock, connects and runs fn with the session. The
// connection is closed and the lock released on every path out.
func (m *Mailbox) Open(ctx context.Context, settings *types.Settings, fn func(Session) error) error {
	select {
	case m.lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for mailbox lock: %w", ctx.Err())
	}
	defer func() { <-m.lock }()

	conn, err := m.dial(ctx, settings, m.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			m.logger.Warn("failed to close mailbox session", "error", err)
		}
	}()

	return fn(conn)
}

// CriteriaFromSettings builds the unseen search for one pass. The end date
// is inclusive. A start on or after the end is logged and passed through
// unchanged.
func CriteriaFromSettings(settings *types.Settings, logger *slog.Logger) Criteria {
	c := Criteria{UnseenOnly: true}
	var end time.Time
	if !settings.DateRange.Enabled {
		return c
	}

	if settings.DateRange.Start != "" {
		t, err := time.Parse(time.DateOnly, settings.DateRange.Start)
		if err != nil {
			logger.Warn("ignoring invalid date_range.start", "value", settings.DateRange.Start, "error", err)
		} else {
			c.Since = t
		}
	}
	if settings.DateRange.End != "" {
		t, err := time.Parse(time.DateOnly, settings.DateRange.End)
		if err != nil {
			logger.Warn("ignoring invalid date_range.end", "value", settings.DateRange.End, "error", err)
		} else {
			end = t
			c.Before = t.AddDate(0, 0, 1)
		}
	}

	if !c.Since.IsZero() && !end.IsZero() && !c.Since.Before(end) {
		logger.Warn("date range start is not before end",
			"start", settings.DateRange.Start,
			"end", settings.DateRange.End)
	}
	return c
}

// Matches reports whether t falls inside the date bounds. Used where the
// server cannot filter by date itself.
func (c Criteria) Matches(t time.Time) bool {
	if !c.Since.IsZero() && t.Before(c.Since) {
		return false
	}
	if !c.Before.IsZero() && !t.Before(c.Before) {
		return false
	}
	return true
}
