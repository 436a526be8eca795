package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

var (
	// ErrInvalidSessionToken indicates a session cookie that fails signature or claim checks.
	ErrInvalidSessionToken = errors.New("jwt: invalid session token")
	// ErrExpiredSessionToken indicates a well-formed session cookie past its expiry.
	ErrExpiredSessionToken = errors.New("jwt: session token expired")
)

// Cookie scopes. The auth cookie guards the admin area; the logged-in cookie tells the
// public site who is signed in.
const (
	ScopeAuth     = "auth"
	ScopeLoggedIn = "logged_in"
)

const minSessionSecretLength = 16

// SessionClaims is the payload of both session cookies. The registered ID carries the
// server-side session id.
type SessionClaims struct {
	UserID     int64  `json:"uid"`
	Login      string `json:"login"`
	Scope      string `json:"scope"`
	Remember   bool   `json:"rem,omitempty"`
	SecureOnly bool   `json:"sec,omitempty"`
	jwt.RegisteredClaims
}

// Session rebuilds the session view carried by the claims.
func (c *SessionClaims) Session() domain.SessionToken {
	token := domain.SessionToken{
		ID:         c.ID,
		UserID:     c.UserID,
		Login:      c.Login,
		Remember:   c.Remember,
		SecureOnly: c.SecureOnly,
	}
	if c.IssuedAt != nil {
		token.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		token.ExpiresAt = c.ExpiresAt.Time
	}
	return token
}

// SessionSigner signs and parses HS256 session cookie values.
type SessionSigner struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSessionSigner constructs a signer. The secret must be at least 16 bytes.
func NewSessionSigner(secret []byte, issuer string) (*SessionSigner, error) {
	if len(secret) < minSessionSecretLength {
		return nil, fmt.Errorf("jwt: session secret must be at least %d bytes", minSessionSecretLength)
	}
	copied := make([]byte, len(secret))
	copy(copied, secret)
	return &SessionSigner{
		secret: copied,
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}, nil
}

// WithClock overrides the time source used for validation.
func (s *SessionSigner) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Sign produces the cookie value for the session in the given scope.
func (s *SessionSigner) Sign(session domain.SessionToken, scope string) (string, error) {
	if strings.TrimSpace(session.ID) == "" {
		return "", fmt.Errorf("jwt: session id is required")
	}
	if session.UserID <= 0 {
		return "", fmt.Errorf("jwt: user id is required")
	}

	claims := &SessionClaims{
		UserID:     session.UserID,
		Login:      session.Login,
		Scope:      scope,
		Remember:   session.Remember,
		SecureOnly: session.SecureOnly,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Issuer:    s.issuer,
			Subject:   fmt.Sprintf("%d", session.UserID),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt.UTC()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt.UTC()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Parse validates the cookie value and requires the expected scope.
func (s *SessionSigner) Parse(value, scope string) (*SessionClaims, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrInvalidSessionToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSessionToken
		}
		return nil, ErrInvalidSessionToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidSessionToken
	}
	if claims.Scope != scope || claims.UserID <= 0 || strings.TrimSpace(claims.ID) == "" {
		return nil, ErrInvalidSessionToken
	}

	return claims, nil
}
