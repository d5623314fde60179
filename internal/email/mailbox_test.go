package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConn struct {
	messages map[uint32][]byte
	closed   bool
	seen     []uint32
}

func (f *fakeConn) Search(ctx context.Context, c Criteria) ([]uint32, error) {
	var uids []uint32
	for uid := range f.messages {
		uids = append(uids, uid)
	}
	return uids, nil
}

func (f *fakeConn) FetchEnvelopes(ctx context.Context, uids []uint32) ([]Envelope, error) {
	return nil, nil
}

func (f *fakeConn) FetchFull(ctx context.Context, uids []uint32, fn func(Message) error) error {
	for _, uid := range uids {
		if err := fn(Message{UID: uid, Raw: f.messages[uid]}); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (f *fakeConn) MarkSeen(ctx context.Context, uid uint32) error {
	f.seen = append(f.seen, uid)
	return nil
}

func (f *fakeConn) RefetchByHeaders(ctx context.Context, subject, sender string) (*Message, error) {
	for uid, raw := range f.messages {
		if strings.Contains(string(raw), "Subject: "+subject) {
			return &Message{UID: uid, Raw: raw}, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func fakeDialer(conn *fakeConn, err error) DialFunc {
	return func(ctx context.Context, settings *types.Settings, logger *slog.Logger) (Conn, error) {
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func TestOpenClosesSession(t *testing.T) {
	conn := &fakeConn{}
	mb := NewMailboxWithDialer(fakeDialer(conn, nil), testLogger())

	wantErr := errors.New("boom")
	err := mb.Open(context.Background(), &types.Settings{}, func(s Session) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Open() error = %v, want %v", err, wantErr)
	}
	if !conn.closed {
		t.Error("session was not closed")
	}

	// lock must have been released
	if err := mb.Open(context.Background(), &types.Settings{}, func(Session) error { return nil }); err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
}

func TestOpenReleasesLockOnDialError(t *testing.T) {
	dialErr := &ConnectError{Server: "mail:993", Err: errors.New("connection refused")}
	mb := NewMailboxWithDialer(fakeDialer(nil, dialErr), testLogger())

	for i := 0; i < 2; i++ {
		err := mb.Open(context.Background(), &types.Settings{}, func(Session) error { return nil })
		var ce *ConnectError
		if !errors.As(err, &ce) {
			t.Fatalf("attempt %d: error = %v, want ConnectError", i, err)
		}
	}
}

func TestOpenWaitsForLock(t *testing.T) {
	mb := NewMailboxWithDialer(fakeDialer(&fakeConn{}, nil), testLogger())

	held := make(chan struct{})
	release := make(chan struct{})
	go mb.Open(context.Background(), &types.Settings{}, func(Session) error {
		close(held)
		<-release
		return nil
	})
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := mb.Open(ctx, &types.Settings{}, func(Session) error {
		t.Error("second session opened while the first is held")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}

	close(release)
}

func TestConnectHint(t *testing.T) {
	tests := []struct {
		err  string
		want string
	}{
		{"dial tcp 10.0.0.1:993: connect: connection refused", "connection refused"},
		{"dial tcp: i/o timeout", "timed out"},
		{"dial tcp: lookup mail.invalid: no such host", "could not be resolved"},
		{"x509: certificate signed by unknown authority", "certificate"},
		{"tls: first record does not look like a TLS handshake", "TLS handshake"},
		{"something else", ""},
	}

	for _, tt := range tests {
		got := connectHint(errors.New(tt.err))
		if tt.want == "" {
			if got != "" {
				t.Errorf("connectHint(%q) = %q, want empty", tt.err, got)
			}
			continue
		}
		if !strings.Contains(got, tt.want) {
			t.Errorf("connectHint(%q) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}

func TestConnectErrorMessageCarriesHint(t *testing.T) {
	err := newConnectError("mail:993", errors.New("connection refused"))
	if !strings.Contains(err.Error(), "check server and port") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestCriteriaFromSettings(t *testing.T) {
	s := &types.Settings{}
	c := CriteriaFromSettings(s, testLogger())
	if !c.UnseenOnly || !c.Since.IsZero() || !c.Before.IsZero() {
		t.Fatalf("disabled range: %+v", c)
	}

	s.DateRange.Enabled = true
	s.DateRange.Start = "2024-01-01"
	s.DateRange.End = "2024-01-31"
	c = CriteriaFromSettings(s, testLogger())
	if !c.Since.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Since = %v", c.Since)
	}
	if !c.Before.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Before = %v", c.Before)
	}
	if !c.Matches(time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)) {
		t.Error("end date should be inclusive")
	}
	if c.Matches(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("day after end date matched")
	}
}

func TestCriteriaInvertedRangeIsKept(t *testing.T) {
	s := &types.Settings{}
	s.DateRange.Enabled = true
	s.DateRange.Start = "2024-03-01"
	s.DateRange.End = "2024-01-01"

	c := CriteriaFromSettings(s, testLogger())
	if c.Since.IsZero() || c.Before.IsZero() {
		t.Fatalf("inverted range dropped: %+v", c)
	}
	if c.Matches(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("inverted range should match nothing")
	}
}

func TestCriteriaWarnsWhenStartNotBeforeEnd(t *testing.T) {
	tests := []struct {
		start, end string
		warn       bool
	}{
		{"2024-01-01", "2024-01-31", false},
		{"2024-01-15", "2024-01-15", true},
		{"2024-03-01", "2024-01-01", true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		s := &types.Settings{}
		s.DateRange.Enabled = true
		s.DateRange.Start = tt.start
		s.DateRange.End = tt.end
		c := CriteriaFromSettings(s, logger)

		if got := strings.Contains(buf.String(), "date range start is not before end"); got != tt.warn {
			t.Errorf("%s..%s: warned = %v, want %v", tt.start, tt.end, got, tt.warn)
		}
		if tt.start == tt.end && !c.Matches(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)) {
			t.Error("single-day range should still match that day")
		}
	}
}

const refetchRaw = "From: Jane Buyer <jane@customer.com>\r\n" +
	"To: orders@example.com\r\n" +
	"Subject: Order 42\r\n" +
	"Date: Mon, 15 Jan 2024 10:00:00 +0000\r\n" +
	"Message-ID: <42@customer.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please see the attached order.\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; name=\"order.txt\"\r\n" +
	"Content-Disposition: attachment; filename=\"order.txt\"\r\n" +
	"\r\n" +
	"10x widget\r\n" +
	"--b1--\r\n"

func TestRefetcherFillsAttachments(t *testing.T) {
	conn := &fakeConn{messages: map[uint32][]byte{7: []byte(refetchRaw)}}
	r := NewRefetcher(NewMailboxWithDialer(fakeDialer(conn, nil), testLogger()), testLogger())

	e := &models.Email{
		ID:          "e1",
		Subject:     "Order 42",
		SenderEmail: "jane@customer.com",
		Attachments: []models.Attachment{{Filename: "order.txt", Size: 10}},
	}
	if err := r.EnsureFullBody(context.Background(), &types.Settings{}, e); err != nil {
		t.Fatalf("EnsureFullBody() error = %v", err)
	}
	if len(e.Attachments) != 1 || !e.Attachments[0].HasContent() {
		t.Fatalf("attachments not filled: %+v", e.Attachments)
	}
	if !conn.closed {
		t.Error("refetch session left open")
	}
}

func TestRefetcherNotFound(t *testing.T) {
	conn := &fakeConn{messages: map[uint32][]byte{}}
	r := NewRefetcher(NewMailboxWithDialer(fakeDialer(conn, nil), testLogger()), testLogger())

	e := &models.Email{Subject: "gone", Attachments: []models.Attachment{{Filename: "a.pdf"}}}
	err := r.EnsureFullBody(context.Background(), &types.Settings{}, e)
	if !errors.Is(err, ErrRefetch) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrRefetch wrapping ErrNotFound", err)
	}
}

func TestRefetcherNoopWhenContentPresent(t *testing.T) {
	mb := NewMailboxWithDialer(fakeDialer(nil, errors.New("must not dial")), testLogger())
	r := NewRefetcher(mb, testLogger())

	e := &models.Email{Attachments: []models.Attachment{{Filename: "a.pdf", Content: []byte("x")}}}
	if err := r.EnsureFullBody(context.Background(), &types.Settings{}, e); err != nil {
		t.Fatalf("EnsureFullBody() error = %v", err)
	}
}

func TestLoginName(t *testing.T) {
	tests := []struct{ user, server, want string }{
		{"orders", "pop3.example.com", "orders@example.com"},
		{"orders", "pop.example.com", "orders@example.com"},
		{"orders@shop.io", "pop.example.com", "orders@shop.io"},
		{"", "pop.example.com", ""},
	}
	for _, tt := range tests {
		if got := loginName(tt.user, tt.server); got != tt.want {
			t.Errorf("loginName(%q, %q) = %q, want %q", tt.user, tt.server, got, tt.want)
		}
	}
}
