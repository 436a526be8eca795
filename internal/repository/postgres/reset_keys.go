package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/repository"
)

// ResetKeyRepository implements port.ResetKeyStore. One row per user; issuing a key upserts.
type ResetKeyRepository struct {
	db      pgTxStarter
	builder squirrel.StatementBuilderType
}

// NewResetKeyRepository wires a PostgreSQL-backed reset key store.
func NewResetKeyRepository(db pgTxStarter) *ResetKeyRepository {
	return &ResetKeyRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Save upserts the record; the last write wins.
func (r *ResetKeyRepository) Save(ctx context.Context, record domain.ResetKeyRecord) error {
	stmt, args, err := r.builder.
		Insert("login.reset_keys").
		Columns("user_id", "key_hash", "issued_at").
		Values(record.UserID, record.KeyHash, record.IssuedAt).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET key_hash = EXCLUDED.key_hash, issued_at = EXCLUDED.issued_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert reset key sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert reset key: %w", err)
	}
	return nil
}

// Get returns the active record of the user.
func (r *ResetKeyRepository) Get(ctx context.Context, userID int64) (*domain.ResetKeyRecord, error) {
	return r.get(ctx, r.db, userID, false)
}

func (r *ResetKeyRepository) get(ctx context.Context, exec pgExecutor, userID int64, lock bool) (*domain.ResetKeyRecord, error) {
	query := r.builder.
		Select("user_id", "key_hash", "issued_at").
		From("login.reset_keys").
		Where(squirrel.Eq{"user_id": userID})
	if lock {
		query = query.Suffix("FOR UPDATE")
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select reset key sql: %w", err)
	}

	var record domain.ResetKeyRecord
	if err := exec.QueryRow(ctx, stmt, args...).Scan(&record.UserID, &record.KeyHash, &record.IssuedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan reset key: %w", err)
	}
	return &record, nil
}

// Delete removes the record of the user. Deleting a missing record is not an error.
func (r *ResetKeyRepository) Delete(ctx context.Context, userID int64) error {
	return r.delete(ctx, r.db, userID)
}

func (r *ResetKeyRepository) delete(ctx context.Context, exec pgExecutor, userID int64) error {
	stmt, args, err := r.builder.
		Delete("login.reset_keys").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete reset key sql: %w", err)
	}

	if _, err := exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete reset key: %w", err)
	}
	return nil
}

// Redeem locks the record row, lets verify inspect it, then updates the password and deletes
// the record in the same transaction. A concurrent redemption blocks on the row lock and then
// finds no record.
func (r *ResetKeyRepository) Redeem(ctx context.Context, userID int64, verify port.ResetKeyVerifier, passwordHash string, changedAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin redeem reset key: %w", err)
	}
	defer rollback(ctx, tx)

	record, err := r.get(ctx, tx, userID, true)
	if err != nil {
		return err
	}

	if verify != nil {
		if err := verify(*record); err != nil {
			return err
		}
	}

	if err := NewUserRepository(tx).UpdatePassword(ctx, userID, passwordHash, changedAt); err != nil {
		return err
	}

	if err := r.delete(ctx, tx, userID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit redeem reset key: %w", err)
	}
	return nil
}

var _ port.ResetKeyStore = (*ResetKeyRepository)(nil)
