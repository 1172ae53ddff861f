package mail

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"github.com/benvon/gtd/internal/models"
)

// maxBodyBytes caps how much of any one text part is kept
const maxBodyBytes = 1 << 20

// ParseMessage reads an RFC 5322 message and fills the header, body and
// attachment fields of an Email. Folder is left to the caller.
func ParseMessage(r io.Reader) (*models.Email, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer func() {
		_ = mr.Close()
	}()

	email := &models.Email{
		Recipients:  []string{},
		CC:          []string{},
		BCC:         []string{},
		Flags:       []string{},
		Attachments: []models.Attachment{},
	}
	fillFromHeader(email, mr.Header)

	var plain, html strings.Builder
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
			if err != nil {
				return nil, fmt.Errorf("failed to read message body: %w", err)
			}
			switch ct {
			case "text/html":
				html.Write(body)
			case "text/plain", "":
				plain.Write(body)
			}
		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			size, err := io.Copy(io.Discard, part.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read attachment: %w", err)
			}
			email.Attachments = append(email.Attachments, models.Attachment{
				Filename:    filename,
				ContentType: ct,
				Size:        size,
			})
		}
	}

	email.Content = strings.TrimSpace(plain.String())
	if html.Len() > 0 {
		h := html.String()
		email.HTMLContent = &h
	}
	return email, nil
}

func fillFromHeader(email *models.Email, h gomail.Header) {
	if subject, err := h.Subject(); err == nil {
		email.Subject = subject
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		email.MessageID = "<" + id + ">"
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		email.Sender = formatAddress(from[0])
	}
	email.Recipients = addressList(h, "To")
	email.CC = addressList(h, "Cc")
	email.BCC = addressList(h, "Bcc")
	if date, err := h.Date(); err == nil && !date.IsZero() {
		email.ReceivedAt = date.UTC()
	}
}

func addressList(h gomail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, formatAddress(a))
	}
	return out
}

func formatAddress(a *gomail.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

// AddressOnly strips a display name from "Name <addr>"
func AddressOnly(s string) string {
	list, err := gomail.ParseAddressList(s)
	if err != nil || len(list) == 0 {
		return strings.TrimSpace(s)
	}
	return list[0].Address
}

// syntheticMessageID is used when a message arrives without a Message-Id header
func syntheticMessageID(accountID int64, uid uint32, received time.Time) string {
	return fmt.Sprintf("<gtd-%d-%d-%d@local>", accountID, uid, received.Unix())
}
