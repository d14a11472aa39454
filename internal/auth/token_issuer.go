package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 12 * time.Hour
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingIssuer        = errors.New("issuer must be provided")
	errMissingAudience      = errors.New("audience must be provided")
	errInvalidTokenTTL      = errors.New("token ttl must be positive")
	errMissingReviewerClaim = errors.New("reviewer claim must be provided")
	errMissingSessionClaim  = errors.New("session claim must be provided")
)

// SessionClaims is the JWT payload identifying a reviewer session.
type SessionClaims struct {
	ReviewerID string `json:"reviewer_id"`
	SessionID  string `json:"session_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the session JWT issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer signs session tokens after a successful login.
type TokenIssuer struct {
	config TokenIssuerConfig
	clock  func() time.Time
}

// NewTokenIssuer validates the configuration and constructs a TokenIssuer.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errMissingIssuer
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errMissingAudience
	}
	ttl := cfg.TokenTTL
	if ttl < 0 {
		return nil, errInvalidTokenTTL
	}
	if ttl == 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		config: TokenIssuerConfig{
			SigningSecret: append([]byte(nil), cfg.SigningSecret...),
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			TokenTTL:      ttl,
			Clock:         clock,
		},
		clock: clock,
	}, nil
}

// SessionIdentity names the reviewer and the server-side session a token is bound to.
type SessionIdentity struct {
	ReviewerID string
	SessionID  string
	Role       string
}

// IssueSessionToken produces a signed JWT and its lifetime in seconds.
func (i *TokenIssuer) IssueSessionToken(_ context.Context, identity SessionIdentity) (string, int64, error) {
	if strings.TrimSpace(identity.ReviewerID) == "" {
		return "", 0, errMissingReviewerClaim
	}
	if strings.TrimSpace(identity.SessionID) == "" {
		return "", 0, errMissingSessionClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.config.TokenTTL).UTC()

	claims := SessionClaims{
		ReviewerID: identity.ReviewerID,
		SessionID:  identity.SessionID,
		Role:       identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ReviewerID,
			ID:        identity.SessionID,
			Issuer:    i.config.Issuer,
			Audience:  []string{i.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// Validator returns a SessionValidator that accepts tokens from this issuer.
func (i *TokenIssuer) Validator(cookieName string) (*SessionValidator, error) {
	return NewSessionValidator(SessionValidatorConfig{
		SigningSecret: i.config.SigningSecret,
		Issuer:        i.config.Issuer,
		Audience:      i.config.Audience,
		CookieName:    cookieName,
		Clock:         i.clock,
	})
}
