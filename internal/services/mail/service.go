package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/events"
	"github.com/benvon/gtd/internal/models"
)

// SendRequest is a new message written by the user
type SendRequest struct {
	AccountID *int64
	To        []string
	CC        []string
	BCC       []string
	Subject   string
	Body      string
}

// Service sends, replies and forwards, and files a SENT copy of each message
type Service struct {
	accounts  database.EmailAccountRepositoryInterface
	emails    database.EmailRepositoryInterface
	sender    Sender
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a mail service. A nil publisher discards changes.
func NewService(
	accounts database.EmailAccountRepositoryInterface,
	emails database.EmailRepositoryInterface,
	sender Sender,
	publisher events.Publisher,
	logger *zap.Logger,
) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		accounts:  accounts,
		emails:    emails,
		sender:    sender,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Account resolves id, or the first active account when id is nil
func (s *Service) Account(ctx context.Context, id *int64) (*models.EmailAccount, error) {
	if id != nil {
		account, err := s.accounts.GetByID(ctx, *id)
		if err != nil {
			return nil, err
		}
		if !account.IsActive {
			return nil, fmt.Errorf("%w: account %d is disabled", ErrNoAccount, account.ID)
		}
		return account, nil
	}
	accounts, err := s.accounts.List(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccount
	}
	return accounts[0], nil
}

// Send delivers a new message
func (s *Service) Send(ctx context.Context, req SendRequest) (*models.Email, error) {
	account, err := s.Account(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	msg := &Outgoing{
		From:    account.Address,
		To:      req.To,
		CC:      req.CC,
		BCC:     req.BCC,
		Subject: req.Subject,
		Body:    req.Body,
	}
	return s.deliver(ctx, account, msg)
}

// Reply answers the stored email id
func (s *Service) Reply(ctx context.Context, id int64, body string) (*models.Email, error) {
	original, err := s.emails.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	account, err := s.Account(ctx, original.AccountID)
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, account, ComposeReply(account.Address, original, body))
}

// Forward sends the stored email id on to new recipients
func (s *Service) Forward(ctx context.Context, id int64, to []string, note string) (*models.Email, error) {
	original, err := s.emails.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	account, err := s.Account(ctx, original.AccountID)
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, account, ComposeForward(account.Address, original, to, note))
}

// deliver sends msg and only then records it, so a failed send writes nothing
func (s *Service) deliver(ctx context.Context, account *models.EmailAccount, msg *Outgoing) (*models.Email, error) {
	if err := s.sender.Send(ctx, account, msg); err != nil {
		return nil, err
	}

	accountID := account.ID
	sent := &models.Email{
		AccountID:   &accountID,
		MessageID:   msg.MessageID,
		Subject:     msg.Subject,
		Sender:      msg.From,
		Recipients:  nonNil(msg.To),
		CC:          nonNil(msg.CC),
		BCC:         nonNil(msg.BCC),
		Content:     msg.Body,
		Folder:      models.FolderSent,
		Processed:   true,
		Flags:       []string{`\Seen`},
		ReceivedAt:  s.now().UTC(),
		Attachments: []models.Attachment{},
	}
	if err := s.emails.Create(ctx, sent); err != nil {
		// The message is already out; a duplicate id just means it was recorded before
		if errors.Is(err, database.ErrConflict) {
			s.logger.Warn("sent_email_already_recorded", zap.String("message_id", msg.MessageID))
			return sent, nil
		}
		return nil, fmt.Errorf("failed to record sent email: %w", err)
	}

	change := events.NewChange(events.EntityEmail, sent.ID, events.ActionCreated, events.EmailList(models.FolderSent))
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.Warn("change_publish_failed", zap.Error(err))
	}
	return sent, nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
