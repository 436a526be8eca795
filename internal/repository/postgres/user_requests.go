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

// UserRequestRepository implements port.UserRequestRepository.
type UserRequestRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRequestRepository wires a PostgreSQL-backed user request store.
func NewUserRequestRepository(exec pgExecutor) *UserRequestRepository {
	return &UserRequestRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get loads a request by id.
func (r *UserRequestRepository) Get(ctx context.Context, id int64) (*domain.UserRequest, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "email", "action", "confirm_key_hash", "status", "created_at", "confirmed_at").
		From("login.user_requests").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user request sql: %w", err)
	}

	var (
		req    domain.UserRequest
		status string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&req.ID,
		&req.UserID,
		&req.Email,
		&req.Action,
		&req.ConfirmKeyHash,
		&status,
		&req.CreatedAt,
		&req.ConfirmedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user request: %w", err)
	}
	req.Status = domain.UserRequestStatus(status)

	return &req, nil
}

// MarkConfirmed flips a pending request to confirmed.
func (r *UserRequestRepository) MarkConfirmed(ctx context.Context, id int64, at time.Time) error {
	stmt, args, err := r.builder.
		Update("login.user_requests").
		Set("status", string(domain.UserRequestConfirmed)).
		Set("confirmed_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build confirm user request sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("confirm user request: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.UserRequestRepository = (*UserRequestRepository)(nil)
