package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/MrEthical07/goIdentity/refresh"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/user"
	"github.com/MrEthical07/goIdentity/verification"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the PostgreSQL ports over one pool.
type Store struct {
	pool     *pgxpool.Pool
	users    *users
	sessions *sessions
	refresh  *refreshTokens
	consumed *consumedTokens
}

// New returns a Store over pool. now drives consumed token expiry; nil uses
// time.Now.
func New(pool *pgxpool.Pool, now func() time.Time) (*Store, error) {
	if pool == nil {
		return nil, errors.New("postgres store requires a pool")
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		pool:     pool,
		users:    &users{db: pool},
		sessions: &sessions{pool: pool},
		refresh:  &refreshTokens{db: pool},
		consumed: &consumedTokens{db: pool, now: now},
	}, nil
}

// Connect parses url and opens a pool.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies every pending migration and returns how many ran.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return 0, err
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("apply migrations: %w", err)
	}
	return len(results), nil
}

// Users returns the user port.
func (s *Store) Users() user.Store { return s.users }

// Sessions returns the session port.
func (s *Store) Sessions() session.Store { return s.sessions }

// RefreshTokens returns the refresh record port.
func (s *Store) RefreshTokens() refresh.Store { return s.refresh }

// ConsumedTokens returns the consumed verification token set.
func (s *Store) ConsumedTokens() verification.ConsumedStore { return s.consumed }

// PurgeConsumed deletes consumed ids whose token expired before the cutoff.
func (s *Store) PurgeConsumed(ctx context.Context, before time.Time) (int64, error) {
	return execCount(ctx, s.pool, psql.Delete("consumed_tokens").Where(sq.Lt{"expires_at": before}))
}

// ResetPassword replaces the hash, clears lockout state and revokes every
// session and refresh token of userID in one transaction.
func (s *Store) ResetPassword(ctx context.Context, userID, passwordHash string, now time.Time) ([]string, error) {
	var ids []string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		n, err := execCount(ctx, tx, psql.Update("users").
			Set("password_hash", passwordHash).
			Set("failed_login_attempts", 0).
			Set("locked_until", nil).
			Set("status", sq.Expr("CASE WHEN status = ? THEN ? ELSE status END", string(user.StatusLocked), string(user.StatusActive))).
			Set("updated_at", now).
			Where(sq.Eq{"id": userID}))
		if err != nil {
			return err
		}
		if n == 0 {
			return user.ErrNotFound
		}

		ids, err = revokeSessions(ctx, tx, userID)
		if err != nil {
			return err
		}
		_, err = revokeRefresh(ctx, tx, refresh.Filter{UserID: userID}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func execCount(ctx context.Context, q querier, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func queryRow(ctx context.Context, q querier, b sq.Sqlizer, dest ...any) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return q.QueryRow(ctx, query, args...).Scan(dest...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// exists reports whether table has a row with id. table is always a constant.
func exists(ctx context.Context, q querier, table, id string) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&ok)
	return ok, err
}
