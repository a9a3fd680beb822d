package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/amachang/passgate/internal/platform/errors"
)

// ErrInvalidToken reports a session cookie that does not carry a valid
// signed session ID.
var ErrInvalidToken = apperrors.New(apperrors.CodeNotFound, "session token is invalid")

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies the session IDs carried by the browser
// cookie, so a forged cookie cannot name an arbitrary session.
type TokenCodec struct {
	issuer string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenCodec.
type TokenOption func(*TokenCodec)

// WithTokenClock overrides the codec clock.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec returns a codec signing session tokens with HS256.
func NewTokenCodec(issuer string, secret []byte, ttl time.Duration, opts ...TokenOption) (*TokenCodec, error) {
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("token issuer is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	c := &TokenCodec{issuer: issuer, secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue returns a signed token carrying the session ID.
func (c *TokenCodec) Issue(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", errors.New("session id is required")
	}
	now := c.now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "sign session token", err)
	}
	return signed, nil
}

// Verify checks a signed token and returns the session ID it names.
func (c *TokenCodec) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	if parsed.Issuer != c.issuer {
		return "", ErrInvalidToken
	}
	if parsed.ExpiresAt == nil || !parsed.ExpiresAt.Time.After(c.now().UTC()) {
		return "", ErrInvalidToken
	}
	sessionID := strings.TrimSpace(parsed.Subject)
	if sessionID == "" {
		return "", ErrInvalidToken
	}
	return sessionID, nil
}
