package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/MrEthical07/goIdentity/user"
	"github.com/jackc/pgx/v5"
)

var userColumns = []string{
	"id", "email", "password_hash", "role", "status", "failed_login_attempts",
	"locked_until", "email_verified_at", "two_factor_enabled", "created_at", "updated_at",
}

type users struct{ db querier }

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var status string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &status, &u.FailedLoginAttempts,
		&u.LockedUntil, &u.EmailVerifiedAt, &u.TwoFactorEnabled, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Status = user.Status(status)
	return &u, nil
}

func (s *users) get(ctx context.Context, where sq.Eq) (*user.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return scanUser(s.db.QueryRow(ctx, query, args...))
}

func (s *users) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.get(ctx, sq.Eq{"email": user.NormalizeEmail(email)})
}

func (s *users) GetByID(ctx context.Context, id string) (*user.User, error) {
	return s.get(ctx, sq.Eq{"id": id})
}

func (s *users) Create(ctx context.Context, u *user.User) error {
	if u == nil || u.ID == "" {
		return errors.New("user id is required")
	}
	status := u.Status
	if status == "" {
		status = user.StatusActive
	}
	_, err := execCount(ctx, s.db, psql.Insert("users").Columns(userColumns...).Values(
		u.ID, user.NormalizeEmail(u.Email), u.PasswordHash, u.Role, string(status), u.FailedLoginAttempts,
		u.LockedUntil, u.EmailVerifiedAt, u.TwoFactorEnabled, u.CreatedAt, u.UpdatedAt,
	))
	if isUniqueViolation(err) {
		if taken, _ := exists(ctx, s.db, "users", u.ID); taken {
			return errors.New("user id already exists")
		}
		return user.ErrEmailTaken
	}
	return err
}

func (s *users) UpdateStatus(ctx context.Context, id string, status user.Status, now time.Time) error {
	if !status.Valid() {
		return errors.New("invalid user status")
	}
	b := psql.Update("users").Set("status", string(status)).Set("updated_at", now).Where(sq.Eq{"id": id})
	if status == user.StatusActive {
		b = b.Set("failed_login_attempts", 0).Set("locked_until", nil)
	}
	n, err := execCount(ctx, s.db, b)
	if err != nil {
		return err
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *users) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	n, err := execCount(ctx, s.db, psql.Update("users").
		Set("password_hash", hash).
		Set("updated_at", now).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *users) MarkEmailVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := execCount(ctx, s.db, psql.Update("users").
		Set("email_verified_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": id, "email_verified_at": nil}))
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, id)
}

const incrementFailedSQL = `
UPDATE users SET
    failed_login_attempts = failed_login_attempts + 1,
    status = CASE
        WHEN failed_login_attempts + 1 >= $2
         AND status <> 'DISABLED'
         AND NOT (status = 'LOCKED' AND locked_until IS NOT NULL AND locked_until > $4)
        THEN 'LOCKED' ELSE status END,
    locked_until = CASE
        WHEN failed_login_attempts + 1 >= $2
         AND status <> 'DISABLED'
         AND NOT (status = 'LOCKED' AND locked_until IS NOT NULL AND locked_until > $4)
        THEN $3 ELSE locked_until END,
    updated_at = $4
WHERE id = $1
RETURNING failed_login_attempts, status, locked_until`

func (s *users) IncrementFailedAttempts(ctx context.Context, id string, threshold int, lockUntil, now time.Time) (user.LockState, error) {
	var state user.LockState
	var status string
	err := s.db.QueryRow(ctx, incrementFailedSQL, id, threshold, lockUntil, now).
		Scan(&state.Attempts, &status, &state.LockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.LockState{}, user.ErrNotFound
	}
	if err != nil {
		return user.LockState{}, err
	}
	state.Status = user.Status(status)
	return state, nil
}

const resetFailedSQL = `
UPDATE users SET
    failed_login_attempts = 0,
    locked_until = NULL,
    status = CASE WHEN status = 'LOCKED' THEN 'ACTIVE' ELSE status END,
    updated_at = $2
WHERE id = $1
  AND NOT (status = 'LOCKED' AND locked_until IS NOT NULL AND locked_until > $2)`

func (s *users) ResetFailedAttempts(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, resetFailedSQL, id, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, id)
}

const clearExpiredLockSQL = `
UPDATE users SET
    status = 'ACTIVE',
    failed_login_attempts = 0,
    locked_until = NULL,
    updated_at = $2
WHERE id = $1
  AND status = 'LOCKED'
  AND (locked_until IS NULL OR locked_until <= $2)`

func (s *users) ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, clearExpiredLockSQL, id, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, id)
}

// mustExist turns a zero-row conditional update into ErrNotFound when the row
// is missing and nil when the condition simply did not hold.
func (s *users) mustExist(ctx context.Context, id string) error {
	ok, err := exists(ctx, s.db, "users", id)
	if err != nil {
		return err
	}
	if !ok {
		return user.ErrNotFound
	}
	return nil
}
