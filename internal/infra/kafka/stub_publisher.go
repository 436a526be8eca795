package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType string, userID int64, at time.Time, payload map[string]any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.Int64("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs login.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(EventUserRegistered, event.UserID, event.RegisteredAt, map[string]any{
		"login":    event.Login,
		"email":    logger.MaskEmail(event.Email),
		"metadata": event.Metadata,
	})
	return nil
}

// PublishPasswordChanged logs login.user.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(EventPasswordChanged, event.UserID, event.ChangedAt, map[string]any{
		"source":           event.Source,
		"sessions_revoked": event.SessionsRevoked,
		"metadata":         event.Metadata,
	})
	return nil
}

// PublishPasswordResetRequested logs login.user.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent(EventPasswordResetRequested, event.UserID, event.RequestedAt, map[string]any{
		"masked_destination": event.MaskedDestination,
		"expires_at":         event.ExpiresAt,
		"metadata":           event.Metadata,
	})
	return nil
}

// PublishSessionStarted logs login.session.started events.
func (p *StubPublisher) PublishSessionStarted(_ context.Context, event domain.SessionStartedEvent) error {
	p.logEvent(EventSessionStarted, event.UserID, event.StartedAt, map[string]any{
		"session_id": event.SessionID,
		"expires_at": event.ExpiresAt,
		"remember":   event.Remember,
	})
	return nil
}

// PublishSessionEnded logs login.session.ended events.
func (p *StubPublisher) PublishSessionEnded(_ context.Context, event domain.SessionEndedEvent) error {
	p.logEvent(EventSessionEnded, event.UserID, event.EndedAt, map[string]any{
		"session_id": event.SessionID,
		"reason":     event.Reason,
	})
	return nil
}

// PublishLoginFailed logs login.failed events.
func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	p.logEvent(EventLoginFailed, event.UserID, event.FailedAt, map[string]any{
		"login":  event.MaskedLogin,
		"reason": event.Reason,
	})
	return nil
}

// PublishUserRequestConfirmed logs login.user.request.confirmed events.
func (p *StubPublisher) PublishUserRequestConfirmed(_ context.Context, event domain.UserRequestConfirmedEvent) error {
	p.logEvent(EventUserRequestConfirmed, event.UserID, event.ConfirmedAt, map[string]any{
		"request_id": event.RequestID,
		"action":     event.Action,
	})
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
