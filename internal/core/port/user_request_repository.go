package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

// UserRequestRepository persists account action requests awaiting confirmation.
type UserRequestRepository interface {
	Get(ctx context.Context, id int64) (*domain.UserRequest, error)
	MarkConfirmed(ctx context.Context, id int64, at time.Time) error
}
