package models

import (
	"time"
)

// EmailFolder is the local folder an email is filed under
type EmailFolder string

const (
	FolderInbox    EmailFolder = "INBOX"
	FolderSent     EmailFolder = "SENT"
	FolderDrafts   EmailFolder = "DRAFTS"
	FolderArchived EmailFolder = "ARCHIVED"
	FolderTrash    EmailFolder = "TRASH"
)

// Valid reports whether f is a known folder
func (f EmailFolder) Valid() bool {
	switch f {
	case FolderInbox, FolderSent, FolderDrafts, FolderArchived, FolderTrash:
		return true
	default:
		return false
	}
}

// Attachment is metadata about an email attachment. Content is never stored.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Email is a message pulled from a mailbox or written locally.
// MessageID is the dedup key against the external mailbox.
type Email struct {
	ID          int64        `json:"id"`
	AccountID   *int64       `json:"account_id,omitempty"`
	MessageID   string       `json:"message_id"`
	Subject     string       `json:"subject"`
	Sender      string       `json:"sender"`
	Recipients  []string     `json:"recipients"`
	CC          []string     `json:"cc"`
	BCC         []string     `json:"bcc"`
	Content     string       `json:"content"`
	HTMLContent *string      `json:"html_content,omitempty"`
	Folder      EmailFolder  `json:"folder"`
	Processed   bool         `json:"processed"`
	Flags       []string     `json:"flags"`
	ReceivedAt  time.Time    `json:"received_at"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// EmailFilter narrows email listings. Nil fields are ignored.
type EmailFilter struct {
	Folder    *EmailFolder
	Processed *bool
}

// EmailAccount holds the IMAP/SMTP settings of one mailbox
type EmailAccount struct {
	ID         int64      `json:"id"`
	Address    string     `json:"address"`
	IMAPHost   string     `json:"imap_host"`
	IMAPPort   int        `json:"imap_port"`
	SMTPHost   string     `json:"smtp_host"`
	SMTPPort   int        `json:"smtp_port"`
	Username   string     `json:"username"`
	Password   string     `json:"-"`
	UseTLS     bool       `json:"use_tls"`
	IsActive   bool       `json:"is_active"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
