package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/MrEthical07/goIdentity/refresh"
	"github.com/jackc/pgx/v5"
)

var refreshColumns = []string{"id", "user_id", "session_id", "expires_at", "revoked", "revoked_at", "created_at"}

type refreshTokens struct{ db querier }

func (s *refreshTokens) Create(ctx context.Context, r *refresh.Record) error {
	_, err := execCount(ctx, s.db, psql.Insert("refresh_tokens").Columns(refreshColumns...).Values(
		r.ID, r.UserID, r.SessionID, r.ExpiresAt, r.Revoked, r.RevokedAt, r.CreatedAt,
	))
	if isUniqueViolation(err) {
		return errors.New("refresh record id already exists")
	}
	return err
}

func (s *refreshTokens) Get(ctx context.Context, id string) (*refresh.Record, error) {
	var rec refresh.Record
	err := queryRow(ctx, s.db, psql.Select(refreshColumns...).From("refresh_tokens").Where(sq.Eq{"id": id}),
		&rec.ID, &rec.UserID, &rec.SessionID, &rec.ExpiresAt, &rec.Revoked, &rec.RevokedAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, refresh.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Consume is the single-winner transition of rotation: only one concurrent
// caller sees a row affected.
func (s *refreshTokens) Consume(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := execCount(ctx, s.db, psql.Update("refresh_tokens").
		Set("revoked", true).
		Set("revoked_at", now).
		Where(sq.Eq{"id": id, "revoked": false}))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *refreshTokens) Revoke(ctx context.Context, f refresh.Filter, now time.Time) (int64, error) {
	return revokeRefresh(ctx, s.db, f, now)
}

func revokeRefresh(ctx context.Context, q querier, f refresh.Filter, now time.Time) (int64, error) {
	if f.Empty() {
		return 0, errors.New("refresh revoke filter is empty")
	}
	where := sq.Eq{"revoked": false}
	if f.UserID != "" {
		where["user_id"] = f.UserID
	}
	if f.SessionID != "" {
		where["session_id"] = f.SessionID
	}
	n, err := execCount(ctx, q, psql.Update("refresh_tokens").
		Set("revoked", true).
		Set("revoked_at", now).
		Where(where))
	if err != nil {
		return 0, fmt.Errorf("revoke refresh records: %w", err)
	}
	return n, nil
}

func (s *refreshTokens) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return execCount(ctx, s.db, psql.Delete("refresh_tokens").Where(sq.Lt{"expires_at": before}))
}
