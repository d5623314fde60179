package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/utility/u_string"
)

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Subject}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table.meta td { padding: 2px 12px 2px 0; vertical-align: top; }
pre { white-space: pre-wrap; }
</style>
</head>
<body>
<h1>{{.Subject}}</h1>
<table class="meta">
<tr><td><b>From</b></td><td>{{.From}}</td></tr>
<tr><td><b>To</b></td><td>{{.To}}</td></tr>
<tr><td><b>Date</b></td><td>{{.Date}}</td></tr>
<tr><td><b>Status</b></td><td>{{.Status}}</td></tr>
<tr><td><b>Classification</b></td><td>{{.Classification}}</td></tr>
</table>
<hr>
{{if .HTMLBody}}<div class="body">{{.HTMLBody}}</div>{{else}}<pre class="body">{{.TextBody}}</pre>{{end}}
</body>
</html>
`))

type emailView struct {
	Subject        string
	From           string
	To             string
	Date           string
	Status         models.EmailStatus
	Classification models.Classification
	HTMLBody       template.HTML
	TextBody       string
}

// renderHTML renders the email. A body that already looks like HTML is
// embedded as is, anything else is escaped.
func renderHTML(email *models.Email) ([]byte, error) {
	view := emailView{
		Subject:        email.Subject,
		From:           email.From,
		To:             email.To,
		Date:           formatDate(email.Date),
		Status:         email.Status,
		Classification: email.Classification,
	}

	if email.IsHTML || u_string.LooksLikeHTML(email.Body) {
		view.HTMLBody = template.HTML(email.Body)
	} else {
		view.TextBody = email.Body
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("failed to render email html: %w", err)
	}
	return buf.Bytes(), nil
}

type attachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type emailMeta struct {
	ID              string                `json:"id,omitempty"`
	MessageID       string                `json:"messageId,omitempty"`
	Subject         string                `json:"subject"`
	From            string                `json:"from"`
	SenderEmail     string                `json:"senderEmail"`
	To              string                `json:"to"`
	Date            string                `json:"date"`
	Status          models.EmailStatus    `json:"status"`
	Classification  models.Classification `json:"classification"`
	Body            string                `json:"body"`
	AttachmentCount int                   `json:"attachmentCount"`
	AttachmentBytes int64                 `json:"attachmentBytes"`
	Attachments     []attachmentMeta      `json:"attachments"`
	ArchivedAt      string                `json:"archivedAt"`
}

func renderJSON(email *models.Email) ([]byte, error) {
	meta := emailMeta{
		ID:             email.ID,
		MessageID:      email.MessageID,
		Subject:        email.Subject,
		From:           email.From,
		SenderEmail:    email.SenderEmail,
		To:             email.To,
		Date:           formatDate(email.Date),
		Status:         email.Status,
		Classification: email.Classification,
		Body:           email.Body,
		Attachments:    make([]attachmentMeta, 0, len(email.Attachments)),
		ArchivedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	for _, a := range email.Attachments {
		size := a.Size
		if a.HasContent() {
			size = int64(len(a.Content))
		}
		meta.AttachmentCount++
		meta.AttachmentBytes += size
		meta.Attachments = append(meta.Attachments, attachmentMeta{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        size,
		})
	}

	return json.MarshalIndent(meta, "", "  ")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
