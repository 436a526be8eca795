package usecase

import (
	"context"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

// Hooks are the optional extension points of the login flows. A nil hook is skipped.
type Hooks struct {
	// LoginRedirect may replace the post-login destination. Returning "" keeps the default.
	// The result is still checked against the redirect policy.
	LoginRedirect func(user *domain.User, requested string) string
	// RegistrationErrors adds diagnostics before an account is created.
	RegistrationErrors func(login, email string) domain.Diagnostics
	// LostPasswordErrors adds diagnostics before a reset key is issued.
	LostPasswordErrors func(identifier string) domain.Diagnostics
	// UserRequestConfirmed runs after an account action request was confirmed.
	UserRequestConfirmed func(ctx context.Context, req domain.UserRequest)
	// RecoveryMode validates a recovery mode link. A nil hook disables recovery mode.
	RecoveryMode func(ctx context.Context, token, key string) error
}

func (h Hooks) loginRedirect(user *domain.User, requested string) string {
	if h.LoginRedirect == nil {
		return ""
	}
	return h.LoginRedirect(user, requested)
}

func (h Hooks) registrationErrors(login, email string) domain.Diagnostics {
	if h.RegistrationErrors == nil {
		return nil
	}
	return h.RegistrationErrors(login, email)
}

func (h Hooks) lostPasswordErrors(identifier string) domain.Diagnostics {
	if h.LostPasswordErrors == nil {
		return nil
	}
	return h.LostPasswordErrors(identifier)
}
