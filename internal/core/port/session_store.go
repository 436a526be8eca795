package port

import (
	"context"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

// SessionStore tracks live sessions so cookies can be revoked server-side.
type SessionStore interface {
	Save(ctx context.Context, session domain.SessionToken) error
	Get(ctx context.Context, sessionID string) (*domain.SessionToken, error)
	Delete(ctx context.Context, sessionID string) error
	// DeleteAllForUser removes every session of the user and returns how many were removed.
	DeleteAllForUser(ctx context.Context, userID int64) (int, error)
}
