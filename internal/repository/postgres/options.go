package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-platform-login/internal/core/port"
)

// OptionRepository implements port.OptionStore for site-wide options.
type OptionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewOptionRepository wires a PostgreSQL-backed option store.
func NewOptionRepository(exec pgExecutor) *OptionRepository {
	return &OptionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get returns the option value and whether it is set.
func (r *OptionRepository) Get(ctx context.Context, key string) (string, bool, error) {
	stmt, args, err := r.builder.
		Select("value").
		From("login.options").
		Where(squirrel.Eq{"key": key}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build select option sql: %w", err)
	}

	var value string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("scan option: %w", err)
	}
	return value, true, nil
}

// Set upserts the option value.
func (r *OptionRepository) Set(ctx context.Context, key, value string) error {
	stmt, args, err := r.builder.
		Insert("login.options").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert option sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert option: %w", err)
	}
	return nil
}

var _ port.OptionStore = (*OptionRepository)(nil)
