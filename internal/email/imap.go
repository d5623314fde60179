package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/altafino/order-mail-extractor/internal/email/parser"
	"github.com/altafino/order-mail-extractor/internal/oauth2"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/emersion/go-imap"
	id "github.com/emersion/go-imap-id"
	"github.com/emersion/go-imap/client"
)

const (
	fetchBatchSize = 10
	clientName     = "order-mail-extractor"
	clientVersion  = "1.0.0"
)

// imapSession is a logged-in IMAP connection with the mailbox selected
type imapSession struct {
	c      *client.Client
	logger *slog.Logger
}

func dialIMAP(ctx context.Context, settings *types.Settings, logger *slog.Logger) (Conn, error) {
	srv := settings.IMAP
	addr := net.JoinHostPort(srv.Server, strconv.Itoa(srv.Port))
	timeout := time.Duration(srv.Timeout) * time.Second

	logger.Info("connecting to IMAP server",
		"server", srv.Server,
		"port", srv.Port,
		"ssl", srv.SSL,
		"username", srv.Username,
	)

	tlsConfig := &tls.Config{
		ServerName:         srv.Server,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !srv.VerifyCert,
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newConnectError(addr, err)
	}

	if srv.SSL {
		tlsConn := tls.Client(conn, tlsConfig)
		hsCtx, cancel := context.WithTimeout(ctx, timeout)
		err := tlsConn.HandshakeContext(hsCtx)
		cancel()
		if err != nil {
			conn.Close()
			return nil, newConnectError(addr, err)
		}
		conn = tlsConn
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, newConnectError(addr, err)
	}
	c.Timeout = timeout

	if !srv.SSL {
		if ok, _ := c.SupportStartTLS(); ok {
			logger.Debug("upgrading connection with STARTTLS")
			if err := c.StartTLS(tlsConfig); err != nil {
				c.Logout()
				return nil, newConnectError(addr, err)
			}
		} else {
			logger.Warn("server does not offer STARTTLS, continuing unencrypted", "server", srv.Server)
		}
	}

	// some providers refuse LOGIN until the client has identified itself
	if ok, _ := c.Support("ID"); ok {
		if _, err := id.NewClient(c).ID(id.ID{
			id.FieldName:    clientName,
			id.FieldVersion: clientVersion,
		}); err != nil {
			logger.Debug("IMAP ID command failed", "error", err)
		}
	}

	if err := authenticateIMAP(ctx, c, srv, logger); err != nil {
		c.Logout()
		return nil, err
	}

	mailbox := srv.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, false); err != nil {
		c.Logout()
		return nil, &SearchError{Err: fmt.Errorf("failed to select %s: %w", mailbox, err)}
	}

	logger.Info("connected to IMAP server", "server", srv.Server, "mailbox", mailbox)
	return &imapSession{c: c, logger: logger}, nil
}

func authenticateIMAP(ctx context.Context, c *client.Client, srv types.MailServer, logger *slog.Logger) error {
	if !srv.OAuth2.Enabled {
		if err := c.Login(srv.Username, srv.Password); err != nil {
			return &AuthError{Username: srv.Username, Err: err}
		}
		return nil
	}

	tm, err := oauth2.ForMailServer(srv, "", logger)
	if err != nil {
		return &AuthError{Username: srv.Username, Err: err}
	}
	token, err := tm.GetAccessToken(ctx)
	if err != nil {
		return &AuthError{Username: srv.Username, Err: err}
	}
	if err := c.Authenticate(oauth2.NewXOAUTH2Client(srv.Username, token)); err != nil {
		return &AuthError{Username: srv.Username, Err: err}
	}
	return nil
}

func (s *imapSession) Close() error {
	return s.c.Logout()
}

func (s *imapSession) Search(ctx context.Context, criteria Criteria) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sc := imap.NewSearchCriteria()
	if criteria.UnseenOnly {
		sc.WithoutFlags = []string{imap.SeenFlag}
	}
	sc.Since = criteria.Since
	sc.Before = criteria.Before

	uids, err := s.c.UidSearch(sc)
	if err != nil {
		return nil, &SearchError{Err: err}
	}

	s.logger.Debug("IMAP search finished", "matches", len(uids))
	return uids, nil
}

func (s *imapSession) FetchEnvelopes(ctx context.Context, uids []uint32) ([]Envelope, error) {
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}
	var envelopes []Envelope

	err := s.fetchBatches(ctx, uids, items, func(msg *imap.Message) error {
		envelopes = append(envelopes, envelopeFromIMAP(msg))
		return nil
	})
	return envelopes, err
}

func envelopeFromIMAP(msg *imap.Message) Envelope {
	e := Envelope{UID: msg.Uid}
	if msg.Envelope == nil {
		return e
	}

	e.MessageID = msg.Envelope.MessageId
	e.Subject = msg.Envelope.Subject
	e.Date = msg.Envelope.Date
	if len(msg.Envelope.From) > 0 {
		from := msg.Envelope.From[0]
		e.SenderEmail = parser.SenderEmail(from.Address())
		e.From = parser.FormatEmailAddress(from.PersonalName, from.Address())
	}
	return e
}

func (s *imapSession) FetchFull(ctx context.Context, uids []uint32, fn func(Message) error) error {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	err := s.fetchBatches(ctx, uids, items, func(msg *imap.Message) error {
		return fn(messageFromIMAP(msg, section))
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func messageFromIMAP(msg *imap.Message, section *imap.BodySectionName) Message {
	body := msg.GetBody(section)
	if body == nil {
		return Message{UID: msg.Uid, Err: fmt.Errorf("server returned no body for uid %d", msg.Uid)}
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return Message{UID: msg.Uid, Err: fmt.Errorf("failed to read body of uid %d: %w", msg.Uid, err)}
	}
	return Message{UID: msg.Uid, Raw: raw}
}

// fetchBatches fetches uids in batches of fetchBatchSize. The callback
// runs after a batch has been received so its errors never leave the
// fetch goroutine blocked.
func (s *imapSession) fetchBatches(ctx context.Context, uids []uint32, items []imap.FetchItem, fn func(*imap.Message) error) error {
	for start := 0; start < len(uids); start += fetchBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+fetchBatchSize, len(uids))
		seqset := new(imap.SeqSet)
		seqset.AddNum(uids[start:end]...)

		messages := make(chan *imap.Message, end-start)
		done := make(chan error, 1)
		go func() {
			done <- s.c.UidFetch(seqset, items, messages)
		}()

		var batch []*imap.Message
		for msg := range messages {
			batch = append(batch, msg)
		}
		if err := <-done; err != nil {
			return fmt.Errorf("failed to fetch messages: %w", err)
		}

		s.logger.Debug("fetched batch", "from", start, "count", len(batch))
		for _, msg := range batch {
			if err := fn(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to mark uid %d as seen: %w", uid, err)
	}
	return nil
}

func (s *imapSession) RefetchByHeaders(ctx context.Context, subject, sender string) (*Message, error) {
	sc := imap.NewSearchCriteria()
	if subject != "" {
		sc.Header.Add("Subject", subject)
	}
	if sender != "" {
		sc.Header.Add("From", sender)
	}

	uids, err := s.c.UidSearch(sc)
	if err != nil {
		return nil, &SearchError{Err: err}
	}
	if len(uids) == 0 {
		return nil, ErrNotFound
	}

	// the newest match is the one we stored
	var found *Message
	err = s.FetchFull(ctx, uids[len(uids)-1:], func(m Message) error {
		found = &m
		return ErrStop
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	if found.Err != nil {
		return nil, found.Err
	}
	return found, nil
}
