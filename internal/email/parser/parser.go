// Package parser turns raw RFC 5322 messages into emails.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"regexp"
	"strings"

	"github.com/DusanKasan/parsemail"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/jhillyerd/enmime"
	"github.com/jhillyerd/enmime/mediatype"
)

// ErrEmptyMessage is returned for a zero-length message
var ErrEmptyMessage = errors.New("empty message")

var attachmentDisposition = regexp.MustCompile(`(?im)^content-disposition:[ \t]*attachment`)

// Parse decodes raw with parsemail and falls back to enmime for messages
// parsemail rejects, which are mostly malformed multipart bodies. enmime also
// takes over when parsemail returned fewer attachments than the message
// declares, since parsemail folds text parts into the body regardless of
// their Content-Disposition.
func Parse(raw []byte, logger *slog.Logger) (*models.Email, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyMessage
	}
	if logger == nil {
		logger = slog.Default()
	}

	parsed, err := parsemail.Parse(bytes.NewReader(raw))
	if err == nil {
		email := fromParsemail(parsed, raw, logger)
		if declared := len(attachmentDisposition.FindAllIndex(raw, -1)); declared > len(email.Attachments) {
			env, envErr := enmime.ReadEnvelope(bytes.NewReader(raw))
			if envErr == nil && len(env.Attachments) > len(email.Attachments) {
				logger.Debug("parsemail dropped attachments, using enmime result",
					"declared", declared,
					"parsemail", len(email.Attachments),
					"enmime", len(env.Attachments))
				return fromEnvelope(env, raw), nil
			}
		}
		return email, nil
	}

	logger.Debug("parsemail failed, attempting fallback parsing", "error", err)

	env, fallbackErr := enmime.ReadEnvelope(bytes.NewReader(raw))
	if fallbackErr != nil {
		return nil, fmt.Errorf("failed to parse message: %w (fallback: %v)", err, fallbackErr)
	}

	return fromEnvelope(env, raw), nil
}

func fromParsemail(p parsemail.Email, raw []byte, logger *slog.Logger) *models.Email {
	email := &models.Email{
		MessageID: MessageID(p.MessageID, raw),
		Subject:   strings.TrimSpace(p.Subject),
		To:        formatAddressList(p.To),
		Date:      p.Date,
	}

	if len(p.From) > 0 && p.From[0] != nil {
		email.From = FormatEmailAddress(p.From[0].Name, p.From[0].Address)
	} else {
		email.From = p.Header.Get("From")
	}
	email.SenderEmail = SenderEmail(email.From)

	if email.Date.IsZero() {
		email.Date = ParseDate(p.Header.Get("Date"))
	}

	if strings.TrimSpace(p.HTMLBody) != "" {
		email.Body = p.HTMLBody
		email.IsHTML = true
	} else {
		email.Body = p.TextBody
	}

	for _, a := range p.Attachments {
		content, err := io.ReadAll(a.Data)
		if err != nil {
			logger.Warn("failed to read attachment",
				"filename", a.Filename,
				"error", err,
			)
			content = nil
		}
		email.Attachments = append(email.Attachments, models.Attachment{
			Filename:    DecodeHeader(a.Filename),
			ContentType: baseMediaType(a.ContentType),
			Size:        int64(len(content)),
			Content:     content,
		})
	}

	return email
}

func fromEnvelope(env *enmime.Envelope, raw []byte) *models.Email {
	email := &models.Email{
		MessageID: MessageID(env.GetHeader("Message-ID"), raw),
		Subject:   strings.TrimSpace(env.GetHeader("Subject")),
		From:      env.GetHeader("From"),
		To:        env.GetHeader("To"),
		Date:      ParseDate(env.GetHeader("Date")),
	}
	email.SenderEmail = SenderEmail(email.From)

	if strings.TrimSpace(env.HTML) != "" {
		email.Body = env.HTML
		email.IsHTML = true
	} else {
		email.Body = env.Text
	}

	for _, part := range env.Attachments {
		email.Attachments = append(email.Attachments, models.Attachment{
			Filename:    part.FileName,
			ContentType: baseMediaType(part.ContentType),
			Size:        int64(len(part.Content)),
			Content:     part.Content,
		})
	}

	return email
}

// DecodeHeader decodes RFC 2047 encoded words in subjects and filenames
func DecodeHeader(filename string) string {
	decoder := mime.WordDecoder{}
	decoded, err := decoder.DecodeHeader(filename)
	if err != nil {
		// If decoding fails, return the original filename
		return filename
	}
	return strings.TrimSpace(decoded)
}

func baseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, _, err := mediatype.Parse(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mt
}
