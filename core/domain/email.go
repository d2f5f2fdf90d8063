package domain

import (
	"strings"
	"time"
)

// RecipientKind distinguishes the addressing header a recipient came from.
type RecipientKind string

const (
	RecipientTo  RecipientKind = "to"
	RecipientCc  RecipientKind = "cc"
	RecipientBcc RecipientKind = "bcc"
)

// Email is the locally mirrored representation of one message.
// MessageID is the stable identity; UID is the provider-side handle and
// may be zero for rows written before UID tracking existed.
type Email struct {
	ID        int64  `json:"id" db:"id"`
	MessageID string `json:"message_id" db:"message_id"`
	UID       uint32 `json:"uid,omitempty" db:"uid"`
	Folder    string `json:"folder" db:"folder"`
	ThreadID  string `json:"thread_id,omitempty" db:"thread_id"`
	InReplyTo string `json:"in_reply_to,omitempty" db:"in_reply_to"`

	Subject     string `json:"subject" db:"subject"`
	FromAddress string `json:"from_address" db:"from_address"`
	FromName    string `json:"from_name,omitempty" db:"from_name"`

	BodyText string `json:"body_text,omitempty" db:"body_text"`
	BodyHTML string `json:"body_html,omitempty" db:"body_html"`
	Snippet  string `json:"snippet,omitempty" db:"snippet"`

	DateSent     time.Time `json:"date_sent" db:"date_sent"`
	DateReceived time.Time `json:"date_received" db:"date_received"`

	IsRead      bool `json:"is_read" db:"is_read"`
	IsStarred   bool `json:"is_starred" db:"is_starred"`
	IsImportant bool `json:"is_important" db:"is_important"`
	IsDraft     bool `json:"is_draft" db:"is_draft"`
	IsSent      bool `json:"is_sent" db:"is_sent"`
	IsTrash     bool `json:"is_trash" db:"is_trash"`
	IsSpam      bool `json:"is_spam" db:"is_spam"`

	Labels     []string `json:"labels,omitempty"`
	References []string `json:"references,omitempty"`

	SizeBytes       int64  `json:"size_bytes" db:"size_bytes"`
	AttachmentCount int    `json:"attachment_count" db:"attachment_count"`
	RawHeaders      string `json:"-" db:"raw_headers"`

	Recipients  []*Recipient  `json:"recipients,omitempty"`
	Attachments []*Attachment `json:"attachments,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasAttachments reports whether the message carries at least one attachment.
func (e *Email) HasAttachments() bool {
	return e.AttachmentCount > 0 || len(e.Attachments) > 0
}

// SenderDomain returns the domain part of the sender address, lowercased.
func (e *Email) SenderDomain() string {
	at := strings.LastIndex(e.FromAddress, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(e.FromAddress[at+1:])
}

// RecipientsOf filters recipients by kind.
func (e *Email) RecipientsOf(kind RecipientKind) []*Recipient {
	var out []*Recipient
	for _, r := range e.Recipients {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Recipient is one normalized To/Cc/Bcc entry of a message.
type Recipient struct {
	ID      int64         `json:"id" db:"id"`
	EmailID int64         `json:"-" db:"email_id"`
	Kind    RecipientKind `json:"kind" db:"kind"`
	Address string        `json:"address" db:"address"`
	Name    string        `json:"name,omitempty" db:"name"`
	Domain  string        `json:"domain,omitempty" db:"domain"`
}

// Attachment is the metadata of one message part stored without its content.
// Extension is derived from the filename, lowercased without the dot.
type Attachment struct {
	ID          int64  `json:"id" db:"id"`
	EmailID     int64  `json:"-" db:"email_id"`
	Filename    string `json:"filename" db:"filename"`
	ContentType string `json:"content_type" db:"content_type"`
	Extension   string `json:"extension,omitempty" db:"extension"`
	SizeBytes   int64  `json:"size_bytes" db:"size_bytes"`
	ContentID   string `json:"content_id,omitempty" db:"content_id"`
	IsInline    bool   `json:"is_inline" db:"is_inline"`
}

// FlagUpdate is a partial mutation of an email's local state. Nil fields
// are left untouched.
type FlagUpdate struct {
	IsRead      *bool     `json:"is_read,omitempty"`
	IsStarred   *bool     `json:"is_starred,omitempty"`
	IsImportant *bool     `json:"is_important,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`
	Folder      *string   `json:"folder,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (u *FlagUpdate) IsEmpty() bool {
	return u.IsRead == nil && u.IsStarred == nil && u.IsImportant == nil &&
		u.Labels == nil && u.Folder == nil
}

// MailboxStats summarizes the local mirror.
type MailboxStats struct {
	TotalEmails     int            `json:"total_emails"`
	UnreadEmails    int            `json:"unread_emails"`
	StarredEmails   int            `json:"starred_emails"`
	WithAttachments int            `json:"with_attachments"`
	Folders         map[string]int `json:"folders"`
	OldestDateSent  *time.Time     `json:"oldest_date_sent,omitempty"`
	NewestDateSent  *time.Time     `json:"newest_date_sent,omitempty"`
	LastSync        *SyncResult    `json:"last_sync,omitempty"`
}
