package port

import (
	"context"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

// EventPublisher announces login page outcomes to the message bus. Publishing is best effort:
// callers log failures and carry on.
type EventPublisher interface {
	// Account lifecycle.
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishUserRequestConfirmed(ctx context.Context, event domain.UserRequestConfirmedEvent) error

	// Sessions.
	PublishSessionStarted(ctx context.Context, event domain.SessionStartedEvent) error
	PublishSessionEnded(ctx context.Context, event domain.SessionEndedEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error
}
