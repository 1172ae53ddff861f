package mail

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/benvon/gtd/internal/models"
)

// ComposeReply answers original from the account address from
func ComposeReply(from string, original *models.Email, body string) *Outgoing {
	out := &Outgoing{
		From:    from,
		To:      []string{original.Sender},
		Subject: prefixSubject("Re: ", original.Subject, "re:"),
		Body:    body + "\n\n" + quote(original),
	}
	if original.MessageID != "" {
		out.InReplyTo = original.MessageID
		out.References = []string{original.MessageID}
	}
	return out
}

// ComposeForward forwards original to the given recipients with an optional note
func ComposeForward(from string, original *models.Email, to []string, note string) *Outgoing {
	var b strings.Builder
	if note = strings.TrimSpace(note); note != "" {
		b.WriteString(note)
		b.WriteString("\n\n")
	}
	b.WriteString("---------- Forwarded message ---------\n")
	fmt.Fprintf(&b, "From: %s\n", original.Sender)
	fmt.Fprintf(&b, "Date: %s\n", original.ReceivedAt.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Subject: %s\n", original.Subject)
	if len(original.Recipients) > 0 {
		fmt.Fprintf(&b, "To: %s\n", strings.Join(original.Recipients, ", "))
	}
	b.WriteString("\n")
	b.WriteString(original.Content)

	return &Outgoing{
		From:    from,
		To:      to,
		Subject: prefixSubject("Fwd: ", original.Subject, "fwd:", "fw:"),
		Body:    b.String(),
	}
}

// prefixSubject adds prefix unless subject already starts with one of the markers
func prefixSubject(prefix, subject string, markers ...string) string {
	trimmed := strings.TrimSpace(subject)
	lower := strings.ToLower(trimmed)
	for _, m := range markers {
		if strings.HasPrefix(lower, m) {
			return trimmed
		}
	}
	return prefix + trimmed
}

func quote(original *models.Email) string {
	var b strings.Builder
	fmt.Fprintf(&b, "On %s, %s wrote:\n", original.ReceivedAt.Format("Mon, Jan 2, 2006 at 15:04"), original.Sender)
	for _, line := range strings.Split(strings.TrimRight(original.Content, "\n"), "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Compose renders msg as an RFC 5322 message. A Message-Id is generated when
// msg has none and written back to msg.MessageID. Bcc never appears in headers.
func Compose(msg *Outgoing, now time.Time) ([]byte, error) {
	from, err := gomail.ParseAddress(msg.From)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid from address: %w", ErrInvalidMessage, err)
	}
	to, err := parseAddresses(msg.To)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid to address: %w", ErrInvalidMessage, err)
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrInvalidMessage)
	}
	cc, err := parseAddresses(msg.CC)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cc address: %w", ErrInvalidMessage, err)
	}
	if _, err := parseAddresses(msg.BCC); err != nil {
		return nil, fmt.Errorf("%w: invalid bcc address: %w", ErrInvalidMessage, err)
	}

	var h gomail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*gomail.Address{from})
	h.SetAddressList("To", to)
	if len(cc) > 0 {
		h.SetAddressList("Cc", cc)
	}
	h.SetSubject(msg.Subject)

	if msg.MessageID == "" {
		if err := h.GenerateMessageID(); err != nil {
			return nil, fmt.Errorf("failed to generate message id: %w", err)
		}
		id, _ := h.MessageID()
		msg.MessageID = "<" + id + ">"
	} else {
		h.SetMessageID(stripAngles(msg.MessageID))
	}
	if msg.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{stripAngles(msg.InReplyTo)})
	}
	if len(msg.References) > 0 {
		refs := make([]string, 0, len(msg.References))
		for _, r := range msg.References {
			refs = append(refs, stripAngles(r))
		}
		h.SetMsgIDList("References", refs)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

func parseAddresses(list []string) ([]*gomail.Address, error) {
	out := make([]*gomail.Address, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		a, err := gomail.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func stripAngles(id string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(id), "<"), ">")
}
