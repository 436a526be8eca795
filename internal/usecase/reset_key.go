package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/security"
	"github.com/arklim/social-platform-login/internal/repository"
)

const (
	defaultResetKeyTTL = 24 * time.Hour
	resetKeyLength     = 20
)

// ResetKeyService issues and checks password reset keys. Only the SHA-256 of a key is stored.
type ResetKeyService struct {
	users  port.CredentialStore
	keys   port.ResetKeyStore
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewResetKeyService constructs a ResetKeyService. A non-positive ttl selects one day.
func NewResetKeyService(users port.CredentialStore, keys port.ResetKeyStore, ttl time.Duration, logger *zap.Logger) *ResetKeyService {
	if ttl <= 0 {
		ttl = defaultResetKeyTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResetKeyService{
		users:  users,
		keys:   keys,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *ResetKeyService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// TTL returns how long an issued key stays valid.
func (s *ResetKeyService) TTL() time.Duration {
	return s.ttl
}

// Issue generates a new key for the user, replacing any previous one.
func (s *ResetKeyService) Issue(ctx context.Context, user *domain.User) (string, error) {
	if user == nil {
		return "", fmt.Errorf("user is required")
	}

	key, err := security.RandomKey(resetKeyLength)
	if err != nil {
		return "", fmt.Errorf("generate reset key: %w", err)
	}

	record := domain.ResetKeyRecord{
		UserID:   user.ID,
		KeyHash:  security.HashKey(key),
		IssuedAt: s.now().UTC(),
	}
	if err := s.keys.Save(ctx, record); err != nil {
		return "", fmt.Errorf("store reset key: %w", err)
	}

	s.logger.Debug("reset key issued", zap.Int64("user_id", user.ID))
	return key, nil
}

// Validate checks a (login, key) pair without consuming it.
func (s *ResetKeyService) Validate(ctx context.Context, login, key string) (*domain.User, error) {
	user, err := s.lookup(ctx, login, key)
	if err != nil {
		return nil, err
	}

	record, err := s.keys.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("load reset key: %w", err)
	}

	if err := s.check(*record, key); err != nil {
		return nil, err
	}
	return user, nil
}

// Redeem validates the pair and, in the same critical section, stores the new password hash
// and deletes the key. A second redemption with the same key fails with ErrInvalidKey.
func (s *ResetKeyService) Redeem(ctx context.Context, login, key, newPasswordHash string) (*domain.User, error) {
	if newPasswordHash == "" {
		return nil, fmt.Errorf("password hash is required")
	}

	user, err := s.lookup(ctx, login, key)
	if err != nil {
		return nil, err
	}

	changedAt := s.now().UTC()
	verify := func(record domain.ResetKeyRecord) error {
		return s.check(record, key)
	}
	if err := s.keys.Redeem(ctx, user.ID, verify, newPasswordHash, changedAt); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrInvalidKey
		case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrExpiredKey):
			return nil, err
		}
		return nil, fmt.Errorf("redeem reset key: %w", err)
	}

	user.PasswordHash = newPasswordHash
	return user, nil
}

// Invalidate deletes the user's key, if any.
func (s *ResetKeyService) Invalidate(ctx context.Context, userID int64) error {
	if err := s.keys.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete reset key: %w", err)
	}
	return nil
}

func (s *ResetKeyService) lookup(ctx context.Context, login, key string) (*domain.User, error) {
	if login == "" || key == "" {
		return nil, ErrInvalidKey
	}
	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// check compares before looking at the clock: a wrong key is invalid even when expired.
func (s *ResetKeyService) check(record domain.ResetKeyRecord, key string) error {
	if !security.KeyMatchesHash(key, record.KeyHash) {
		return ErrInvalidKey
	}
	if record.IsExpired(s.now().UTC(), s.ttl) {
		return ErrExpiredKey
	}
	return nil
}
