package mail

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/logger"
	"github.com/benvon/gtd/internal/metrics"
	"github.com/benvon/gtd/internal/models"
)

// implicitTLSPort is the SMTPS submission port; every other port uses STARTTLS
const implicitTLSPort = 465

type deliverFunc func(addr string, implicitTLS bool, auth sasl.Client, from string, to []string, r io.Reader) error

// SMTPSender submits messages with PLAIN auth over a fresh connection per call
type SMTPSender struct {
	logger  *zap.Logger
	now     func() time.Time
	deliver deliverFunc
}

// NewSMTPSender creates a sender
func NewSMTPSender(logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		logger:  logger,
		now:     time.Now,
		deliver: deliver,
	}
}

func deliver(addr string, implicitTLS bool, auth sasl.Client, from string, to []string, r io.Reader) error {
	if implicitTLS {
		return smtp.SendMailTLS(addr, auth, from, to, r)
	}
	return smtp.SendMail(addr, auth, from, to, r)
}

// Send composes msg and submits it through the account's SMTP server
func (s *SMTPSender) Send(ctx context.Context, account *models.EmailAccount, msg *Outgoing) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveGateway("smtp", "send", start, err)
	}()

	if msg.From == "" {
		msg.From = account.Address
	}
	raw, err := Compose(msg, s.now())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return gatewayError("smtp send", err)
	}

	recipients := make([]string, 0, len(msg.Recipients()))
	for _, r := range msg.Recipients() {
		recipients = append(recipients, AddressOnly(r))
	}

	auth := sasl.NewPlainClient("", account.Username, account.Password)
	addr := hostPort(account.SMTPHost, account.SMTPPort)
	if err := s.deliver(addr, account.SMTPPort == implicitTLSPort, auth, AddressOnly(msg.From), recipients, bytes.NewReader(raw)); err != nil {
		return gatewayError("smtp send", err)
	}

	s.logger.Info("email_sent",
		zap.String("message_id", msg.MessageID),
		zap.String("from", logger.SanitizeAddress(msg.From)),
		zap.String("subject", logger.SanitizeSubject(msg.Subject)),
		zap.Int("recipients", len(recipients)))
	return nil
}

var _ Sender = (*SMTPSender)(nil)
