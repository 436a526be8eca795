package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

// NewUser carries the fields required to create an account.
type NewUser struct {
	Login        string
	Email        string
	PasswordHash string
	Status       domain.UserStatus
	Locale       string
	Capabilities []string
	RegisteredAt time.Time
}

// CredentialStore exposes user lookup and mutation for the login flows.
type CredentialStore interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByLogin(ctx context.Context, login string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	GetOption(ctx context.Context, userID int64, key string) (string, error)
	SetOption(ctx context.Context, userID int64, key, value string) error
	// Create returns *domain.ValidationError when the login or email is taken.
	Create(ctx context.Context, user NewUser) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string, changedAt time.Time) error
	// RehashPassword replaces oldHash without counting as a password change. It returns
	// repository.ErrNotFound when the stored hash is no longer oldHash.
	RehashPassword(ctx context.Context, userID int64, oldHash, newHash string) error
}

// Site option keys.
const (
	SiteOptionUsersCanRegister   = "users_can_register"
	SiteOptionAdminEmail         = "admin_email"
	SiteOptionAdminEmailLifespan = "admin_email_lifespan"
)

// OptionStore reads and writes site-wide options.
type OptionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
