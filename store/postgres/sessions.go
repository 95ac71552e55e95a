package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var sessionColumns = []string{
	"id", "user_id", "created_at", "last_active_at", "expires_at", "user_agent", "ip_address", "revoked",
}

type sessions struct{ pool *pgxpool.Pool }

func scanSession(row pgx.Row, sess *session.Session) error {
	return row.Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.LastActiveAt, &sess.ExpiresAt,
		&sess.UserAgent, &sess.IPAddress, &sess.Revoked)
}

// CreateCapped locks the owning user row so concurrent logins of the same user
// serialise on the count.
func (s *sessions) CreateCapped(ctx context.Context, sess *session.Session, max int, now time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, "SELECT id FROM users WHERE id = $1 FOR UPDATE", sess.UserID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("session owner %q does not exist", sess.UserID)
		}
		if err != nil {
			return err
		}

		if max > 0 {
			var active int
			err = queryRow(ctx, tx, psql.Select("count(*)").From("sessions").Where(sq.And{
				sq.Eq{"user_id": sess.UserID, "revoked": false},
				sq.Gt{"expires_at": now},
			}), &active)
			if err != nil {
				return err
			}
			if active >= max {
				return session.ErrCapReached
			}
		}

		_, err = execCount(ctx, tx, psql.Insert("sessions").Columns(sessionColumns...).Values(
			sess.ID, sess.UserID, sess.CreatedAt, sess.LastActiveAt, sess.ExpiresAt,
			sess.UserAgent, sess.IPAddress, sess.Revoked,
		))
		if isUniqueViolation(err) {
			return errors.New("session id already exists")
		}
		return err
	})
}

func (s *sessions) Get(ctx context.Context, id string) (*session.Session, error) {
	query, args, err := psql.Select(sessionColumns...).From("sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var sess session.Session
	err = scanSession(s.pool.QueryRow(ctx, query, args...), &sess)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *sessions) Touch(ctx context.Context, id string, lastActiveAt, expiresAt time.Time) error {
	n, err := execCount(ctx, s.pool, psql.Update("sessions").
		Set("last_active_at", lastActiveAt).
		Set("expires_at", expiresAt).
		Where(sq.Eq{"id": id, "revoked": false}))
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *sessions) Revoke(ctx context.Context, id string, _ time.Time) (bool, error) {
	n, err := execCount(ctx, s.pool, psql.Update("sessions").
		Set("revoked", true).
		Where(sq.Eq{"id": id, "revoked": false}))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sessions) RevokeAllForUser(ctx context.Context, userID string, _ time.Time) ([]string, error) {
	return revokeSessions(ctx, s.pool, userID)
}

func revokeSessions(ctx context.Context, q querier, userID string) ([]string, error) {
	query, args, err := psql.Update("sessions").
		Set("revoked", true).
		Where(sq.Eq{"user_id": userID, "revoked": false}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *sessions) ListActive(ctx context.Context, userID string, now time.Time) ([]session.Session, error) {
	query, args, err := psql.Select(sessionColumns...).From("sessions").Where(sq.And{
		sq.Eq{"user_id": userID, "revoked": false},
		sq.Gt{"expires_at": now},
	}).OrderBy("created_at").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.Session, error) {
		var sess session.Session
		err := scanSession(row, &sess)
		return sess, err
	})
}

func (s *sessions) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return execCount(ctx, s.pool, psql.Delete("sessions").Where(sq.Lt{"expires_at": before}))
}
