// Package token issues and verifies the HS256 bearer tokens that guard the API.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultIssuer is the iss claim written and required on every token
const DefaultIssuer = "gtd"

// ErrInvalidToken is returned for tokens that fail signature or claim checks
var ErrInvalidToken = errors.New("invalid token")

// Claims are the verified claims of a token
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager signs and verifies tokens with a shared secret
type Manager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewManager creates a token manager. The secret must not be empty.
func NewManager(secret string) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &Manager{secret: []byte(secret), issuer: DefaultIssuer, now: time.Now}, nil
}

// Issue signs a token for subject that expires after ttl
func (m *Manager) Issue(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := m.now().UTC().Truncate(time.Second)
	tok, err := jwt.NewBuilder().
		Issuer(m.issuer).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, m.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

// Verify checks the signature, issuer and expiry of tokenString
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	tok, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(jwa.HS256, m.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.issuer),
		jwt.WithClock(jwt.ClockFunc(m.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &Claims{
		Subject:   tok.Subject(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}, nil
}
