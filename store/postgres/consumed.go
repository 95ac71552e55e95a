package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
)

type consumedTokens struct {
	db  querier
	now func() time.Time
}

// An expired entry may be reclaimed by the same jti; a live one may not.
const markConsumedSQL = `
INSERT INTO consumed_tokens (jti, expires_at) VALUES ($1, $2)
ON CONFLICT (jti) DO UPDATE SET expires_at = EXCLUDED.expires_at
WHERE consumed_tokens.expires_at <= $3`

func (s *consumedTokens) MarkConsumed(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, markConsumedSQL, jti, expiresAt, s.now())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *consumedTokens) Release(ctx context.Context, jti string) error {
	_, err := execCount(ctx, s.db, psql.Delete("consumed_tokens").Where(sq.Eq{"jti": jti}))
	return err
}
