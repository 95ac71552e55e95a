package verification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, clock *testClock, consumed ConsumedStore) *Service {
	t.Helper()
	codec, err := jwt.NewCodec(jwt.Config{PrivateKey: []byte(strings.Repeat("v", 32)), Now: clock.Now})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := NewService(codec, consumed)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestConsumeIsSingleUse(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, NewMemoryConsumedStore(clock.Now))
	ctx := context.Background()

	token, _, err := svc.IssueToken(jwt.TypeEmailVerification, "u1", "a@x.com", DefaultEmailVerificationTTL)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := svc.Consume(ctx, token, jwt.TypeEmailVerification)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if claims.UserID() != "u1" || claims.Email != "a@x.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := svc.Consume(ctx, token, jwt.TypeEmailVerification); !errors.Is(err, autherr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on replay, got %v", err)
	}
}

func TestConsumeRejectsTypeMismatch(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, NewMemoryConsumedStore(clock.Now))

	token, _, err := svc.IssueToken(jwt.TypeEmailVerification, "u1", "a@x.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := svc.Consume(context.Background(), token, jwt.TypePasswordReset); !errors.Is(err, autherr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Consume(context.Background(), token, jwt.TypeEmailVerification); err != nil {
		t.Fatalf("mismatched attempt must not consume the token: %v", err)
	}
}

func TestConsumeExpired(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, NewMemoryConsumedStore(clock.Now))

	token, _, err := svc.IssueToken(jwt.TypePasswordReset, "u1", "a@x.com", DefaultPasswordResetTTL)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	clock.now = clock.now.Add(DefaultPasswordResetTTL + time.Second)
	if _, err := svc.Consume(context.Background(), token, jwt.TypePasswordReset); !errors.Is(err, autherr.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, NewMemoryConsumedStore(clock.Now))
	ctx := context.Background()

	token, _, _ := svc.IssueToken(jwt.TypePasswordReset, "u1", "a@x.com", time.Hour)
	claims, err := svc.Consume(ctx, token, jwt.TypePasswordReset)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := svc.Release(ctx, claims.TokenID()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := svc.Consume(ctx, token, jwt.TypePasswordReset); err != nil {
		t.Fatalf("expected released token to be consumable, got %v", err)
	}
}

func TestIssueBoundTokenCarriesBinding(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, NewMemoryConsumedStore(clock.Now))

	fp := Fingerprint("$2a$10$somehash")
	if len(fp) != 32 || fp == Fingerprint("$2a$10$otherhash") {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
	token, _, err := svc.IssueBoundToken(jwt.TypePasswordReset, "u1", "a@x.com", fp, time.Hour)
	if err != nil {
		t.Fatalf("IssueBoundToken: %v", err)
	}
	claims, err := svc.Consume(context.Background(), token, jwt.TypePasswordReset)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if claims.Bnd != fp {
		t.Fatalf("Bnd = %q, want %q", claims.Bnd, fp)
	}
}

func TestIssueTokenRejectsAccessType(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, NewMemoryConsumedStore(clock.Now))
	if _, _, err := svc.IssueToken(jwt.TypeAccess, "u1", "", time.Hour); err == nil {
		t.Fatal("expected access type to be rejected")
	}
}

func TestConcurrentConsumeHasOneWinner(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, NewRedisConsumedStore(rdb, "", clock.Now))
	token, _, _ := svc.IssueToken(jwt.TypePasswordReset, "u1", "a@x.com", time.Hour)

	const workers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(context.Background(), token, jwt.TypePasswordReset); err == nil {
				wins.Add(1)
			} else if !errors.Is(err, autherr.ErrInvalidToken) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", wins.Load())
	}
}

func TestRedisConsumedStoreTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	now := time.Unix(1_700_000_000, 0)
	store := NewRedisConsumedStore(rdb, "c:", func() time.Time { return now })
	first, err := store.MarkConsumed(context.Background(), "j1", now.Add(10*time.Minute))
	if err != nil || !first {
		t.Fatalf("expected first mark, got %v %v", first, err)
	}
	if ttl := mr.TTL("c:j1"); ttl != 10*time.Minute {
		t.Fatalf("expected ttl 10m, got %v", ttl)
	}
}

func TestMemoryConsumedStorePurge(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryConsumedStore(func() time.Time { return now })
	ctx := context.Background()

	_, _ = store.MarkConsumed(ctx, "old", now.Add(-time.Hour))
	_, _ = store.MarkConsumed(ctx, "live", now.Add(time.Hour))

	n, err := store.PurgeExpired(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("expected one purged entry, got %d %v", n, err)
	}
}
