package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/security"
	"github.com/arklim/social-platform-login/internal/repository"
)

const (
	defaultSessionTTL  = 48 * time.Hour
	defaultRememberTTL = 14 * 24 * time.Hour

	sessionEndedLogout        = "logout"
	sessionEndedPasswordReset = "password_reset"
)

// SessionSettings configures the cookie pair.
type SessionSettings struct {
	SessionTTL  time.Duration
	RememberTTL time.Duration
	// AuthPath scopes the auth cookie to the admin area.
	AuthPath string
}

// SessionIssuer issues, verifies and clears the auth and logged-in cookies. Both carry a
// signed token naming a session that must still exist in the store.
type SessionIssuer struct {
	store    port.SessionStore
	signer   *security.SessionSigner
	events   port.EventPublisher
	names    CookieNames
	settings SessionSettings
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionIssuer constructs a SessionIssuer.
func NewSessionIssuer(store port.SessionStore, signer *security.SessionSigner, events port.EventPublisher, names CookieNames, settings SessionSettings, logger *zap.Logger) *SessionIssuer {
	if settings.SessionTTL <= 0 {
		settings.SessionTTL = defaultSessionTTL
	}
	if settings.RememberTTL <= 0 {
		settings.RememberTTL = defaultRememberTTL
	}
	if settings.AuthPath == "" {
		settings.AuthPath = "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionIssuer{
		store:    store,
		signer:   signer,
		events:   events,
		names:    names,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock allows tests to override the clock used by the issuer.
func (s *SessionIssuer) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Issue starts a session. Remembered sessions get persistent cookies; others get browser
// session cookies and a shorter server-side expiry.
func (s *SessionIssuer) Issue(ctx context.Context, user *domain.User, remember, secure bool, meta ClientMeta) (*domain.SessionToken, []*http.Cookie, error) {
	if user == nil {
		return nil, nil, fmt.Errorf("user is required")
	}

	now := s.now().UTC()
	ttl := s.settings.SessionTTL
	if remember {
		ttl = s.settings.RememberTTL
	}

	session := domain.SessionToken{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Login:      user.Login,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
		Remember:   remember,
		SecureOnly: secure,
		IP:         strings.TrimSpace(meta.IP),
		UserAgent:  strings.TrimSpace(meta.UserAgent),
	}

	if err := s.store.Save(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("store session: %w", err)
	}

	authValue, err := s.signer.Sign(session, security.ScopeAuth)
	if err != nil {
		return nil, nil, fmt.Errorf("sign auth cookie: %w", err)
	}
	loggedInValue, err := s.signer.Sign(session, security.ScopeLoggedIn)
	if err != nil {
		return nil, nil, fmt.Errorf("sign logged-in cookie: %w", err)
	}

	cookieTTL := session.CookieLifetime()
	cookies := []*http.Cookie{
		newCookie(s.names.Auth, authValue, s.settings.AuthPath, secure, cookieTTL, now),
		newCookie(s.names.LoggedIn, loggedInValue, "/", secure, cookieTTL, now),
	}

	s.publishStarted(ctx, session)
	return &session, cookies, nil
}

// Verify resolves a logged-in cookie value to its live session.
func (s *SessionIssuer) Verify(ctx context.Context, value string) (*domain.SessionToken, error) {
	return s.verify(ctx, value, security.ScopeLoggedIn)
}

// Current returns the session of the request, or ErrNoSession.
func (s *SessionIssuer) Current(ctx context.Context, req *Request) (*domain.SessionToken, error) {
	value, ok := req.Cookie(s.names.LoggedIn)
	if !ok {
		return nil, ErrNoSession
	}
	return s.Verify(ctx, value)
}

func (s *SessionIssuer) verify(ctx context.Context, value, scope string) (*domain.SessionToken, error) {
	claims, err := s.signer.Parse(strings.TrimSpace(value), scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}

	stored, err := s.store.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if stored.UserID != claims.UserID || !stored.Live(s.now().UTC()) {
		return nil, ErrNoSession
	}
	return stored, nil
}

// Clear ends the request's session if there is one and always returns expiring cookies.
// Calling it without a session is fine.
func (s *SessionIssuer) Clear(ctx context.Context, req *Request) []*http.Cookie {
	for _, candidate := range []struct{ name, scope string }{
		{s.names.LoggedIn, security.ScopeLoggedIn},
		{s.names.Auth, security.ScopeAuth},
	} {
		value, ok := req.Cookie(candidate.name)
		if !ok {
			continue
		}
		claims, err := s.signer.Parse(value, candidate.scope)
		if err != nil {
			continue
		}
		if err := s.store.Delete(ctx, claims.ID); err != nil {
			s.logger.Warn("delete session failed", zap.String("session_id", claims.ID), zap.Error(err))
			continue
		}
		s.publishEnded(ctx, claims.ID, claims.UserID, sessionEndedLogout)
		break
	}

	secure := req.Secure()
	return []*http.Cookie{
		expiredCookie(s.names.Auth, s.settings.AuthPath, secure),
		expiredCookie(s.names.LoggedIn, "/", secure),
	}
}

// DestroyAll ends every session of the user.
func (s *SessionIssuer) DestroyAll(ctx context.Context, userID int64) (int, error) {
	removed, err := s.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("destroy sessions: %w", err)
	}
	if removed > 0 {
		s.publishEnded(ctx, "", userID, sessionEndedPasswordReset)
	}
	return removed, nil
}

func (s *SessionIssuer) publishStarted(ctx context.Context, session domain.SessionToken) {
	if s.events == nil {
		return
	}
	event := domain.SessionStartedEvent{
		EventID:   uuid.NewString(),
		SessionID: session.ID,
		UserID:    session.UserID,
		StartedAt: session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
		Remember:  session.Remember,
		IPAddress: stringPtrOrNil(session.IP),
		UserAgent: stringPtrOrNil(session.UserAgent),
	}
	if err := s.events.PublishSessionStarted(ctx, event); err != nil {
		s.logger.Warn("publish session started failed", zap.Int64("user_id", session.UserID), zap.Error(err))
	}
}

func (s *SessionIssuer) publishEnded(ctx context.Context, sessionID string, userID int64, reason string) {
	if s.events == nil {
		return
	}
	event := domain.SessionEndedEvent{
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		EndedAt:   s.now().UTC(),
		Reason:    reason,
	}
	if err := s.events.PublishSessionEnded(ctx, event); err != nil {
		s.logger.Warn("publish session ended failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// ClientMeta describes the client a session is issued to.
type ClientMeta struct {
	IP        string
	UserAgent string
}

func stringPtrOrNil(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
