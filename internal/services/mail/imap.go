package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/metrics"
	"github.com/benvon/gtd/internal/models"
)

// IMAPFetcher reads the INBOX of an account
type IMAPFetcher struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewIMAPFetcher creates a fetcher that dials with the given timeout (0 uses a default)
func NewIMAPFetcher(timeout time.Duration, logger *zap.Logger) *IMAPFetcher {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &IMAPFetcher{timeout: timeout, logger: logger}
}

func dial(account *models.EmailAccount) (*client.Client, error) {
	addr := hostPort(account.IMAPHost, account.IMAPPort)
	if account.UseTLS {
		return client.DialTLS(addr, &tls.Config{ServerName: account.IMAPHost, MinVersion: tls.VersionTLS12})
	}
	return client.Dial(addr)
}

// FetchInbox returns up to limit of the newest INBOX messages, newest first.
// The mailbox is opened read-only and bodies are peeked so nothing is marked seen.
func (f *IMAPFetcher) FetchInbox(ctx context.Context, account *models.EmailAccount, limit int) (emails []*models.Email, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveGateway("imap", "fetch_inbox", start, err)
	}()

	if limit <= 0 {
		limit = 50
	}

	c, err := dial(account)
	if err != nil {
		return nil, gatewayError("imap dial", err)
	}
	c.Timeout = f.timeout

	// Unblock any in-flight command when the caller gives up
	stop := context.AfterFunc(ctx, func() {
		_ = c.Terminate()
	})
	defer stop()
	defer func() {
		if logoutErr := c.Logout(); logoutErr != nil {
			f.logger.Debug("imap_logout_failed", zap.Error(logoutErr))
		}
	}()

	if err := c.Login(account.Username, account.Password); err != nil {
		return nil, gatewayError("imap login", err)
	}

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return nil, gatewayError("imap select", err)
	}
	if mbox.Messages == 0 {
		return []*models.Email{}, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(limit) {
		from = mbox.Messages - uint32(limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	emails = make([]*models.Email, 0, limit)
	for msg := range messages {
		email, convErr := toEmail(account.ID, msg, section)
		if convErr != nil {
			f.logger.Warn("imap_message_skipped",
				zap.Uint32("uid", msg.Uid),
				zap.Error(convErr))
			continue
		}
		emails = append(emails, email)
	}
	if err := <-done; err != nil {
		if ctx.Err() != nil {
			return nil, gatewayError("imap fetch", ctx.Err())
		}
		return nil, gatewayError("imap fetch", err)
	}

	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].ReceivedAt.After(emails[j].ReceivedAt)
	})
	return emails, nil
}

// toEmail maps one fetched message. The envelope wins over parsed headers for
// addressing; the body section supplies content and attachments.
func toEmail(accountID int64, msg *imap.Message, section *imap.BodySectionName) (*models.Email, error) {
	if msg == nil || msg.Envelope == nil {
		return nil, fmt.Errorf("message has no envelope")
	}

	email := &models.Email{
		Recipients:  []string{},
		CC:          []string{},
		BCC:         []string{},
		Attachments: []models.Attachment{},
	}
	if body := msg.GetBody(section); body != nil {
		parsed, err := ParseMessage(body)
		if err != nil {
			return nil, err
		}
		email = parsed
	}

	env := msg.Envelope
	if env.MessageId != "" {
		email.MessageID = env.MessageId
	}
	if env.Subject != "" {
		email.Subject = env.Subject
	}
	if len(env.From) > 0 {
		email.Sender = imapAddress(env.From[0])
	}
	if to := imapAddresses(env.To); len(to) > 0 {
		email.Recipients = to
	}
	if cc := imapAddresses(env.Cc); len(cc) > 0 {
		email.CC = cc
	}
	if bcc := imapAddresses(env.Bcc); len(bcc) > 0 {
		email.BCC = bcc
	}

	switch {
	case !msg.InternalDate.IsZero():
		email.ReceivedAt = msg.InternalDate.UTC()
	case !env.Date.IsZero():
		email.ReceivedAt = env.Date.UTC()
	case email.ReceivedAt.IsZero():
		email.ReceivedAt = time.Now().UTC()
	}

	if email.MessageID == "" {
		email.MessageID = syntheticMessageID(accountID, msg.Uid, email.ReceivedAt)
	}

	email.Flags = append([]string{}, msg.Flags...)
	email.Processed = false
	email.Folder = models.FolderInbox
	if accountID != 0 {
		id := accountID
		email.AccountID = &id
	}
	return email, nil
}

func imapAddress(a *imap.Address) string {
	addr := a.Address()
	if a.PersonalName == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", a.PersonalName, addr)
}

func imapAddresses(list []*imap.Address) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a == nil {
			continue
		}
		out = append(out, imapAddress(a))
	}
	return out
}

var _ Fetcher = (*IMAPFetcher)(nil)
