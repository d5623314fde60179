package parser

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const multipartMessage = "From: \"John Doe\" <John.Doe@Example.com>\r\n" +
	"To: orders@shop.io\r\n" +
	"Subject: Order for 5 widgets\r\n" +
	"Date: Mon, 15 Jan 2024 10:30:00 +0000\r\n" +
	"Message-ID: <abc123@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please send 5 widgets.\r\n" +
	"--XYZ\r\n" +
	"Content-Type: application/pdf; name=\"po.pdf\"\r\n" +
	"Content-Disposition: attachment; filename=\"po.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--XYZ--\r\n"

func TestParseMultipart(t *testing.T) {
	email, err := Parse([]byte(multipartMessage), testLogger())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if email.MessageID != "abc123@example.com" {
		t.Errorf("MessageID = %q", email.MessageID)
	}
	if email.Subject != "Order for 5 widgets" {
		t.Errorf("Subject = %q", email.Subject)
	}
	if email.SenderEmail != "john.doe@example.com" {
		t.Errorf("SenderEmail = %q", email.SenderEmail)
	}
	if !strings.Contains(email.From, "John Doe") {
		t.Errorf("From = %q", email.From)
	}
	if email.IsHTML || !strings.Contains(email.Body, "5 widgets") {
		t.Errorf("Body = %q (html=%v)", email.Body, email.IsHTML)
	}
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if !email.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", email.Date, want)
	}

	if len(email.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(email.Attachments))
	}
	att := email.Attachments[0]
	if att.Filename != "po.pdf" || string(att.Content) != "%PDF-1.4" || att.Size != 8 {
		t.Errorf("attachment = %+v", att)
	}
}

const textAttachmentMessage = "From: Jane Buyer <jane@customer.com>\r\n" +
	"To: orders@shop.io\r\n" +
	"Subject: Order 42\r\n" +
	"Message-ID: <42@customer.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"See attached.\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; name=\"order.txt\"\r\n" +
	"Content-Disposition: attachment; filename=\"order.txt\"\r\n" +
	"\r\n" +
	"10x widget\r\n" +
	"--b1--\r\n"

func TestParseKeepsTextAttachments(t *testing.T) {
	email, err := Parse([]byte(textAttachmentMessage), testLogger())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(email.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1 (body %q)", len(email.Attachments), email.Body)
	}
	att := email.Attachments[0]
	if att.Filename != "order.txt" || !strings.Contains(string(att.Content), "10x widget") {
		t.Errorf("attachment = %+v", att)
	}
	if strings.Contains(email.Body, "10x widget") {
		t.Errorf("attachment text leaked into body: %q", email.Body)
	}
	if !strings.Contains(email.Body, "See attached.") {
		t.Errorf("Body = %q", email.Body)
	}
	if email.MessageID != "42@customer.com" || email.SenderEmail != "jane@customer.com" {
		t.Errorf("headers = %q / %q", email.MessageID, email.SenderEmail)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse([]byte("  \r\n"), testLogger()); err != ErrEmptyMessage {
		t.Errorf("error = %v, want ErrEmptyMessage", err)
	}
}

func TestMessageIDFallsBackToHash(t *testing.T) {
	raw := []byte("Subject: x\r\n\r\nbody")
	a := MessageID("", raw)
	b := MessageID("", raw)
	if a == "" || a != b || !strings.HasPrefix(a, "sha256-") {
		t.Errorf("MessageID = %q / %q", a, b)
	}
}

func TestSenderEmail(t *testing.T) {
	tests := map[string]string{
		`"Bob" <Bob@Shop.COM>`:     "bob@shop.com",
		"alice@example.org":        "alice@example.org",
		"Broken Name <x@y.z":       "broken name <x@y.z",
		"Weird, Inc <sales@w.com>": "sales@w.com",
		"":                         "",
	}

	for in, want := range tests {
		if got := SenderEmail(in); got != want {
			t.Errorf("SenderEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"Mon, 15 Jan 2024 10:30:00 +0000", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"Mon, 15 Jan 2024 10:30:00 +0000 (UTC)", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"15.01.2024", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"garbage", time.Time{}},
	}

	for _, tt := range tests {
		if got := ParseDate(tt.in); !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
