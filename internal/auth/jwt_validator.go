package auth

import (
	"errors"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator validates the claims of a service token.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Validate checks issuer, audience, time claims and the presence of a subject.
func (v TokenValidator) Validate(tok jwt.Token, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if tok.Subject() == "" {
		return errors.New("auth: token missing subject")
	}
	if tok.Expiration().IsZero() {
		return errors.New("auth: token missing expiry")
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, options...)
}
