package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

// ResetKeyVerifier inspects the locked record during redemption. Returning an error aborts the
// redemption and leaves the record and password untouched.
type ResetKeyVerifier func(record domain.ResetKeyRecord) error

// ResetKeyStore persists one reset key record per user.
type ResetKeyStore interface {
	// Save upserts the record; the most recent write wins.
	Save(ctx context.Context, record domain.ResetKeyRecord) error
	Get(ctx context.Context, userID int64) (*domain.ResetKeyRecord, error)
	Delete(ctx context.Context, userID int64) error
	// Redeem locks the record, runs verify, then sets the password hash and deletes the record
	// in one critical section.
	Redeem(ctx context.Context, userID int64, verify ResetKeyVerifier, passwordHash string, changedAt time.Time) error
}
