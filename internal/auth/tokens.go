package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/smartpay-gateway/internal/common"
)

// Tokens issues and verifies HS256 service tokens for gateway callers.
type Tokens struct {
	secret    []byte
	validator TokenValidator
	now       func() time.Time
}

// TokensConfig configures Tokens.
type TokensConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// NewTokens validates cfg and returns Tokens.
func NewTokens(cfg TokensConfig) (*Tokens, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("auth: secret must be at least 16 bytes")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	return &Tokens{
		secret: []byte(cfg.Secret),
		validator: TokenValidator{
			Issuer:    cfg.Issuer,
			Audience:  cfg.Audience,
			ClockSkew: skew,
		},
		now: now,
	}, nil
}

// Issue signs a token for subject valid for ttl.
func (t *Tokens) Issue(subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("auth: subject is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := t.now()
	builder := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if t.validator.Issuer != "" {
		builder = builder.Issuer(t.validator.Issuer)
	}
	if t.validator.Audience != "" {
		builder = builder.Audience([]string{t.validator.Audience})
	}
	token, err := builder.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Parse verifies token and returns its subject.
func (t *Tokens) Parse(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(jwa.HS256, t.secret), jwt.WithValidate(false))
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := t.validator.Validate(parsed, t.now()); err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	return parsed.Subject(), nil
}
