// Package mail is the email gateway. It fetches inbox messages over IMAP,
// sends over SMTP and maps wire messages to models.Email records.
//
// Every call dials and authenticates a fresh connection; clients are never
// cached between calls.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/benvon/gtd/internal/models"
)

// ErrGateway wraps every failure that came from the mail server
var ErrGateway = errors.New("mail gateway error")

// ErrInvalidMessage is returned when an outgoing message cannot be composed
var ErrInvalidMessage = errors.New("invalid message")

// ErrNoAccount is returned when no active email account can send or fetch
var ErrNoAccount = errors.New("no active email account")

const defaultDialTimeout = 30 * time.Second

// Fetcher pulls messages from an account's inbox
type Fetcher interface {
	FetchInbox(ctx context.Context, account *models.EmailAccount, limit int) ([]*models.Email, error)
}

// Sender delivers one composed message
type Sender interface {
	Send(ctx context.Context, account *models.EmailAccount, msg *Outgoing) error
}

// Outgoing is a message ready to be composed and sent
type Outgoing struct {
	From       string
	To         []string
	CC         []string
	BCC        []string
	Subject    string
	Body       string
	InReplyTo  string
	References []string
	MessageID  string
}

// Recipients returns every envelope recipient
func (o *Outgoing) Recipients() []string {
	out := make([]string, 0, len(o.To)+len(o.CC)+len(o.BCC))
	out = append(out, o.To...)
	out = append(out, o.CC...)
	out = append(out, o.BCC...)
	return out
}

func gatewayError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrGateway, op, err)
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
