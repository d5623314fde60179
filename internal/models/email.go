package models

import "time"

// EmailStatus is the processing state of a stored email
type EmailStatus string

const (
	StatusUnprocessed EmailStatus = "unprocessed"
	StatusProcessing  EmailStatus = "processing"
	StatusProcessed   EmailStatus = "processed"
	StatusError       EmailStatus = "error"
)

// Classification is the routing state of an email, distinct from its content type
type Classification string

const (
	ClassInbox     Classification = "inbox"
	ClassWhitelist Classification = "whitelist"
	ClassBlacklist Classification = "blacklist"
	ClassPending   Classification = "pending"
	ClassUnsorted  Classification = "unsorted"
)

// ContentType is the order/estimate/other category assigned by the classifier
type ContentType string

const (
	TypeOrder    ContentType = "order"
	TypeEstimate ContentType = "estimate"
	TypeOther    ContentType = "other"
)

// Attachment is a single attachment of an email. Content is nil when the
// bytes have not been fetched yet.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Content     []byte `json:"-"`
}

// HasContent reports whether the attachment bytes are present
func (a Attachment) HasContent() bool {
	return len(a.Content) > 0
}

// ParsedInfo is the content classification and, once extracted, the structured data
type ParsedInfo struct {
	Type       ContentType `json:"type"`
	Data       *ParsedData `json:"data,omitempty"`
	Confidence float64     `json:"confidence"`
	Reasoning  string      `json:"reasoning,omitempty"`
}

// Email represents one message taken from the mailbox
type Email struct {
	ID             string         `json:"id" db:"id"`
	MessageID      string         `json:"message_id" db:"message_id"`
	UID            uint32         `json:"uid" db:"uid"`
	Subject        string         `json:"subject" db:"subject"`
	From           string         `json:"from" db:"from_header"`
	SenderEmail    string         `json:"sender_email" db:"sender_email"`
	To             string         `json:"to" db:"to_header"`
	Date           time.Time      `json:"date" db:"date"`
	Body           string         `json:"body" db:"body"`
	IsHTML         bool           `json:"is_html" db:"is_html"`
	Attachments    []Attachment   `json:"attachments" db:"-"`
	Status         EmailStatus    `json:"status" db:"status"`
	Classification Classification `json:"classification" db:"classification"`
	Parsed         *ParsedInfo    `json:"parsed,omitempty" db:"-"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// MissingAttachmentContent reports whether at least one attachment stub has
// no bytes, which is the case for emails loaded back from the store.
func (e *Email) MissingAttachmentContent() bool {
	for _, a := range e.Attachments {
		if !a.HasContent() {
			return true
		}
	}
	return false
}

// EmailPatch is a partial update applied by UpdateEmail. Nil fields are left untouched.
type EmailPatch struct {
	Status         *EmailStatus
	Classification *Classification
	Parsed         *ParsedInfo
}
