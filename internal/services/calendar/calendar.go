// Package calendar is the calendar gateway. It reads upcoming events from
// Google Calendar with a stored OAuth2 grant.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/metrics"
	"github.com/benvon/gtd/internal/models"
)

var (
	// ErrNotConnected means there is no usable grant, or no client is configured
	ErrNotConnected = errors.New("calendar not connected")
	// ErrGateway wraps failures from the calendar provider
	ErrGateway = errors.New("calendar gateway error")
)

const (
	defaultCalendarID = "primary"
	defaultMaxEvents  = 50
)

// Config holds the OAuth client settings
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CalendarID   string
	// Endpoint overrides the Google OAuth endpoint
	Endpoint *oauth2.Endpoint
	// APIEndpoint overrides the Calendar API base URL
	APIEndpoint string
}

// Status reports whether the gateway can be used
type Status struct {
	Configured bool       `json:"configured"`
	Connected  bool       `json:"connected"`
	Expiry     *time.Time `json:"expiry,omitempty"`
}

// Service reads events with a fresh token source and client on every call
type Service struct {
	oauth       *oauth2.Config
	calendarID  string
	apiEndpoint string
	tokens      database.CalendarTokenRepositoryInterface
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates the calendar gateway
func NewService(cfg Config, tokens database.CalendarTokenRepositoryInterface, logger *zap.Logger) *Service {
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = defaultCalendarID
	}
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{gcal.CalendarReadonlyScope},
		},
		calendarID:  calendarID,
		apiEndpoint: cfg.APIEndpoint,
		tokens:      tokens,
		logger:      logger,
		now:         time.Now,
	}
}

// Configured reports whether client credentials are present
func (s *Service) Configured() bool {
	return s.oauth.ClientID != "" && s.oauth.ClientSecret != ""
}

// AuthURL is the consent page to send the user to
func (s *Service) AuthURL(state string) (string, error) {
	if !s.Configured() {
		return "", fmt.Errorf("%w: google client is not configured", ErrNotConnected)
	}
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for a grant and stores it
func (s *Service) Exchange(ctx context.Context, code string) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveGateway("calendar", "exchange", start, err)
	}()

	if !s.Configured() {
		return fmt.Errorf("%w: google client is not configured", ErrNotConnected)
	}
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("%w: exchange: %w", ErrGateway, err)
	}
	if err := s.tokens.Save(ctx, fromOAuth(tok)); err != nil {
		return err
	}
	s.logger.Info("calendar_connected")
	return nil
}

// Status reports configuration and whether a grant is stored
func (s *Service) Status(ctx context.Context) (Status, error) {
	st := Status{Configured: s.Configured()}
	tok, err := s.tokens.Get(ctx)
	if errors.Is(err, database.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Connected = st.Configured && (tok.RefreshToken != "" || tok.Expiry.After(s.now()))
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		st.Expiry = &expiry
	}
	return st, nil
}

// UpcomingEvents lists single events starting within the next days, ordered by start
func (s *Service) UpcomingEvents(ctx context.Context, days, maxResults int) (events []models.CalendarEvent, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveGateway("calendar", "list_events", start, err)
	}()

	if days <= 0 {
		days = 7
	}
	if maxResults <= 0 {
		maxResults = defaultMaxEvents
	}

	srv, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resp, err := srv.Events.List(s.calendarID).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.AddDate(0, 0, days).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %w", ErrGateway, err)
	}

	events = make([]models.CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev, ok := toEvent(item)
		if !ok {
			s.logger.Debug("calendar_event_skipped", zap.String("event_id", item.Id))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// client builds a calendar service from the stored grant. Nothing is cached:
// grants expire and may be replaced by a new consent at any time.
func (s *Service) client(ctx context.Context) (*gcal.Service, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("%w: google client is not configured", ErrNotConnected)
	}
	stored, err := s.tokens.Get(ctx)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, err
	}

	current := toOAuth(stored)
	src := &persistingTokenSource{
		ctx:     ctx,
		src:     s.oauth.TokenSource(ctx, current),
		current: current,
		tokens:  s.tokens,
		logger:  s.logger,
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}
	if s.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(s.apiEndpoint))
	}
	srv, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %w", ErrGateway, err)
	}
	return srv, nil
}

// persistingTokenSource saves a grant whenever the underlying source refreshes it
type persistingTokenSource struct {
	ctx     context.Context
	src     oauth2.TokenSource
	current *oauth2.Token
	tokens  database.CalendarTokenRepositoryInterface
	logger  *zap.Logger
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != p.current.AccessToken {
		p.current = tok
		if err := p.tokens.Save(p.ctx, fromOAuth(tok)); err != nil {
			p.logger.Error("calendar_token_save_failed", zap.Error(err))
		} else {
			p.logger.Info("calendar_token_refreshed")
		}
	}
	return tok, nil
}

func toOAuth(t *models.CalendarToken) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}

func fromOAuth(t *oauth2.Token) *models.CalendarToken {
	return &models.CalendarToken{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}

func toEvent(item *gcal.Event) (models.CalendarEvent, bool) {
	if item == nil || item.Start == nil {
		return models.CalendarEvent{}, false
	}
	ev := models.CalendarEvent{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Link:        item.HtmlLink,
	}
	if ev.Summary == "" {
		ev.Summary = "(no title)"
	}

	startAt, allDay, ok := parseEventTime(item.Start)
	if !ok {
		return models.CalendarEvent{}, false
	}
	ev.Start = startAt
	ev.AllDay = allDay
	ev.End = startAt
	if item.End != nil {
		if endAt, _, ok := parseEventTime(item.End); ok {
			ev.End = endAt
		}
	}
	return ev, true
}

func parseEventTime(dt *gcal.EventDateTime) (time.Time, bool, bool) {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, false, err == nil
	}
	if dt.Date != "" {
		t, err := time.Parse(models.DateLayout, dt.Date)
		return t, true, err == nil
	}
	return time.Time{}, false, false
}
