package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/altafino/order-mail-extractor/internal/email/parser"
	"github.com/altafino/order-mail-extractor/internal/tracking"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/knadh/go-pop3"
)

// pop3Session emulates the IMAP session on top of POP3. Message numbers
// stand in for UIDs for the lifetime of the session and the UIDL journal
// stands in for the \Seen flag.
type pop3Session struct {
	conn     *pop3.Conn
	tracker  *tracking.Manager
	logger   *slog.Logger
	uidl     map[uint32]string
	criteria Criteria
}

func dialPOP3(ctx context.Context, settings *types.Settings, logger *slog.Logger) (Conn, error) {
	srv := settings.POP3
	addr := net.JoinHostPort(srv.Server, strconv.Itoa(srv.Port))

	logger.Info("connecting to POP3 server",
		"server", srv.Server,
		"port", srv.Port,
		"ssl", srv.SSL,
		"username", srv.Username,
	)

	p := pop3.New(pop3.Opt{
		Host:          srv.Server,
		Port:          srv.Port,
		TLSEnabled:    srv.SSL,
		TLSSkipVerify: !srv.VerifyCert,
	})

	conn, err := p.NewConn()
	if err != nil {
		return nil, newConnectError(addr, err)
	}

	if err := conn.Auth(loginName(srv.Username, srv.Server), srv.Password); err != nil {
		conn.Quit()
		return nil, &AuthError{Username: srv.Username, Err: err}
	}

	tracker, err := tracking.NewManager(settings.Tracking.StoragePath, srv.Server, srv.Username, logger)
	if err != nil {
		conn.Quit()
		return nil, fmt.Errorf("failed to open POP3 seen journal: %w", err)
	}

	count, size, err := conn.Stat()
	if err != nil {
		tracker.Close()
		conn.Quit()
		return nil, &SearchError{Err: fmt.Errorf("failed to get mailbox stats: %w", err)}
	}
	logger.Info("connected to POP3 server", "messages", count, "total_size", size)

	return &pop3Session{
		conn:    conn,
		tracker: tracker,
		logger:  logger,
	}, nil
}

func (s *pop3Session) Close() error {
	if err := s.tracker.Close(); err != nil {
		s.logger.Warn("failed to close POP3 seen journal", "error", err)
	}
	return s.conn.Quit()
}

func (s *pop3Session) loadUIDL() error {
	if s.uidl != nil {
		return nil
	}
	ids, err := s.conn.Uidl(0)
	if err != nil {
		return &SearchError{Err: fmt.Errorf("UIDL failed: %w", err)}
	}
	s.uidl = make(map[uint32]string, len(ids))
	for _, m := range ids {
		s.uidl[uint32(m.ID)] = m.UID
	}
	return nil
}

func (s *pop3Session) Search(ctx context.Context, criteria Criteria) ([]uint32, error) {
	if err := s.loadUIDL(); err != nil {
		return nil, err
	}
	s.criteria = criteria

	var uids []uint32
	for num := uint32(1); num <= uint32(len(s.uidl)); num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		uidl, ok := s.uidl[num]
		if !ok {
			continue
		}
		if criteria.UnseenOnly {
			seen, err := s.tracker.IsSeen(uidl)
			if err != nil {
				s.logger.Warn("failed to check POP3 seen journal", "uidl", uidl, "error", err)
			} else if seen {
				continue
			}
		}
		uids = append(uids, num)
	}

	s.logger.Debug("POP3 search finished", "matches", len(uids))
	return uids, nil
}

func (s *pop3Session) FetchEnvelopes(ctx context.Context, uids []uint32) ([]Envelope, error) {
	envelopes := make([]Envelope, 0, len(uids))
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return envelopes, err
		}
		env, err := s.envelope(uid)
		if err != nil {
			return envelopes, err
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

func (s *pop3Session) envelope(uid uint32) (Envelope, error) {
	entity, err := s.conn.Top(int(uid), 0)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to read headers of message %d: %w", uid, err)
	}

	from := parser.DecodeHeader(entity.Header.Get("From"))
	return Envelope{
		UID:         uid,
		MessageID:   strings.Trim(strings.TrimSpace(entity.Header.Get("Message-Id")), "<>"),
		Subject:     parser.DecodeHeader(entity.Header.Get("Subject")),
		From:        from,
		SenderEmail: parser.SenderEmail(from),
		Date:        parser.ParseDate(entity.Header.Get("Date")),
	}, nil
}

// FetchFull retrieves each message with RETR. POP3 has no server side date
// filter, so the date bounds of the last Search are applied here.
func (s *pop3Session) FetchFull(ctx context.Context, uids []uint32, fn func(Message) error) error {
	bounded := !s.criteria.Since.IsZero() || !s.criteria.Before.IsZero()

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return err
		}

		if bounded {
			env, err := s.envelope(uid)
			if err == nil && !env.Date.IsZero() && !s.criteria.Matches(env.Date) {
				s.logger.Debug("message outside date range", "uid", uid, "date", env.Date)
				continue
			}
		}

		msg := Message{UID: uid}
		buf, err := s.conn.RetrRaw(int(uid))
		if err != nil {
			msg.Err = fmt.Errorf("failed to retrieve message %d: %w", uid, err)
		} else {
			msg.Raw = buf.Bytes()
		}

		if err := fn(msg); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *pop3Session) MarkSeen(ctx context.Context, uid uint32) error {
	if err := s.loadUIDL(); err != nil {
		return err
	}
	uidl, ok := s.uidl[uid]
	if !ok {
		return fmt.Errorf("unknown message number %d", uid)
	}
	return s.tracker.MarkSeen(uidl, "")
}

func (s *pop3Session) RefetchByHeaders(ctx context.Context, subject, sender string) (*Message, error) {
	if err := s.loadUIDL(); err != nil {
		return nil, err
	}
	sender = strings.ToLower(sender)

	// newest first
	for num := uint32(len(s.uidl)); num >= 1; num-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		env, err := s.envelope(num)
		if err != nil {
			continue
		}
		if subject != "" && env.Subject != subject {
			continue
		}
		if sender != "" && !strings.Contains(env.SenderEmail, sender) {
			continue
		}

		buf, err := s.conn.RetrRaw(int(num))
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve message %d: %w", num, err)
		}
		return &Message{UID: num, Raw: buf.Bytes()}, nil
	}
	return nil, ErrNotFound
}

// loginName appends the mail domain to bare user names, which most POP3
// providers expect.
func loginName(username, server string) string {
	if username == "" || strings.Contains(username, "@") {
		return username
	}
	domain := server
	for _, prefix := range []string{"pop3.", "pop.", "mail."} {
		domain = strings.TrimPrefix(domain, prefix)
	}
	return username + "@" + domain
}
