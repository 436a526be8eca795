package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/repository"
)

var userColumns = []string{
	"id",
	"login",
	"email",
	"password_hash",
	"status",
	"locale",
	"capabilities",
	"registered_at",
}

// UserRepository implements port.CredentialStore using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed credential store.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder}
}

// FindByID retrieves a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.findOne(ctx, squirrel.Eq{"id": id})
}

// FindByLogin retrieves a user by login name, ignoring case.
func (r *UserRepository) FindByLogin(ctx context.Context, login string) (*domain.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, squirrel.Expr("lower(login) = lower(?)", login))
}

// FindByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, squirrel.Expr("lower(email) = lower(?)", email))
}

func (r *UserRepository) findOne(ctx context.Context, pred squirrel.Sqlizer) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("login.users").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var (
		user   domain.User
		status string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&user.ID,
		&user.Login,
		&user.Email,
		&user.PasswordHash,
		&status,
		&user.Locale,
		&user.Capabilities,
		&user.RegisteredAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Status = domain.UserStatus(status)

	options, err := r.loadOptions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Options = options

	return &user, nil
}

func (r *UserRepository) loadOptions(ctx context.Context, userID int64) (map[string]string, error) {
	stmt, args, err := r.builder.
		Select("key", "value").
		From("login.user_options").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user options sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query user options: %w", err)
	}
	defer rows.Close()

	options := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan user option: %w", err)
		}
		options[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user options: %w", err)
	}

	return options, nil
}

// GetOption returns a per-user option, or "" when it is unset.
func (r *UserRepository) GetOption(ctx context.Context, userID int64, key string) (string, error) {
	stmt, args, err := r.builder.
		Select("value").
		From("login.user_options").
		Where(squirrel.Eq{"user_id": userID, "key": key}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select user option sql: %w", err)
	}

	var value string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("scan user option: %w", err)
	}
	return value, nil
}

// SetOption upserts a per-user option.
func (r *UserRepository) SetOption(ctx context.Context, userID int64, key, value string) error {
	stmt, args, err := r.builder.
		Insert("login.user_options").
		Columns("user_id", "key", "value").
		Values(userID, key, value).
		Suffix("ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert user option sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert user option: %w", err)
	}
	return nil
}

// Create inserts a new user. Format problems and taken logins or emails are reported as
// *domain.ValidationError.
func (r *UserRepository) Create(ctx context.Context, user port.NewUser) (*domain.User, error) {
	login := strings.TrimSpace(user.Login)
	email := strings.TrimSpace(user.Email)

	if verr := domain.ValidateNewAccount(login, email); verr != nil {
		return nil, verr
	}

	verr := &domain.ValidationError{}
	if taken, err := r.exists(ctx, "login", login); err != nil {
		return nil, err
	} else if taken {
		verr.Add("user_login", domain.CodeUsernameExists, "This username is already registered. Please choose another one.")
	}
	if taken, err := r.exists(ctx, "email", email); err != nil {
		return nil, err
	} else if taken {
		verr.Add("user_email", domain.CodeEmailExists, "This email address is already registered.")
	}
	if !verr.Empty() {
		return nil, verr
	}

	status := user.Status
	if status == "" {
		status = domain.UserStatusActive
	}
	capabilities := user.Capabilities
	if capabilities == nil {
		capabilities = domain.DefaultCapabilities()
	}
	registeredAt := user.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.
		Insert("login.users").
		Columns("login", "email", "password_hash", "status", "locale", "capabilities", "registered_at").
		Values(login, email, user.PasswordHash, string(status), user.Locale, capabilities, registeredAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user sql: %w", err)
	}

	var id int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return nil, duplicateError(constraint)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &domain.User{
		ID:           id,
		Login:        login,
		Email:        email,
		PasswordHash: user.PasswordHash,
		Status:       status,
		Locale:       user.Locale,
		Capabilities: capabilities,
		Options:      map[string]string{},
		RegisteredAt: registeredAt,
	}, nil
}

func (r *UserRepository) exists(ctx context.Context, column, value string) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		From("login.users").
		Where(squirrel.Expr(fmt.Sprintf("lower(%s) = lower(?)", column), value)).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build user exists sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check user %s: %w", column, err)
	}
	return true, nil
}

// duplicateError covers the race where another insert wins between the existence check and ours.
func duplicateError(constraint string) *domain.ValidationError {
	verr := &domain.ValidationError{}
	if strings.Contains(constraint, "email") {
		verr.Add("user_email", domain.CodeEmailExists, "This email address is already registered.")
	} else {
		verr.Add("user_login", domain.CodeUsernameExists, "This username is already registered. Please choose another one.")
	}
	return verr
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.
		Update("login.users").
		Set("password_hash", passwordHash).
		Set("password_changed_at", changedAt).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RehashPassword swaps in a hash made with current parameters. The update only applies while
// the stored hash is still oldHash, so a concurrent password change wins.
func (r *UserRepository) RehashPassword(ctx context.Context, userID int64, oldHash, newHash string) error {
	stmt, args, err := r.builder.
		Update("login.users").
		Set("password_hash", newHash).
		Where(squirrel.Eq{"id": userID, "password_hash": oldHash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rehash password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("rehash password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.CredentialStore = (*UserRepository)(nil)
