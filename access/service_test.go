package access

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, clock *testClock, store RevocationStore) *Service {
	t.Helper()
	codec, err := jwt.NewCodec(jwt.Config{PrivateKey: []byte(strings.Repeat("s", 32)), Now: clock.Now})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := NewService(codec, store, Config{Now: clock.Now})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestVerifyHonoursExpiryBoundary(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, NewMemoryRevocationStore(clock.Now))
	issued := clock.now

	token, exp, err := svc.Issue("u1", "a@x.com", "tester", "s1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(issued.Add(DefaultTTL)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	clock.now = issued.Add(DefaultTTL - time.Second)
	claims, err := svc.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("expected token valid at TTL-1s, got %v", err)
	}
	if claims.UserID() != "u1" || claims.Role != "tester" || claims.SID != "s1" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	clock.now = issued.Add(DefaultTTL + time.Second)
	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, autherr.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at TTL+1s, got %v", err)
	}
}

func TestInvalidateRevokesSingleToken(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, NewMemoryRevocationStore(clock.Now))
	ctx := context.Background()

	first, _, _ := svc.Issue("u1", "a@x.com", "", "s1")
	second, _, _ := svc.Issue("u1", "a@x.com", "", "s1")

	if _, err := svc.Invalidate(ctx, first); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := svc.Verify(ctx, first); !errors.Is(err, autherr.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
	if _, err := svc.Verify(ctx, second); err != nil {
		t.Fatalf("expected sibling token to stay valid, got %v", err)
	}
}

func TestInvalidateSessionRevokesAllSessionTokens(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, NewMemoryRevocationStore(clock.Now))
	ctx := context.Background()

	a, _, _ := svc.Issue("u1", "", "", "s1")
	b, _, _ := svc.Issue("u1", "", "", "s1")
	other, _, _ := svc.Issue("u1", "", "", "s2")

	if err := svc.InvalidateSession(ctx, "s1"); err != nil {
		t.Fatalf("InvalidateSession: %v", err)
	}
	for _, tok := range []string{a, b} {
		if _, err := svc.Verify(ctx, tok); !errors.Is(err, autherr.ErrTokenRevoked) {
			t.Fatalf("expected ErrTokenRevoked, got %v", err)
		}
	}
	if _, err := svc.Verify(ctx, other); err != nil {
		t.Fatalf("expected other session token valid, got %v", err)
	}
}

func TestInvalidateExpiredTokenIsNoop(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryRevocationStore(clock.Now)
	svc := newTestService(t, clock, store)

	token, _, _ := svc.Issue("u1", "", "", "s1")
	clock.now = clock.now.Add(DefaultTTL + time.Minute)

	if _, err := svc.Invalidate(context.Background(), token); err != nil {
		t.Fatalf("expected nil for expired token, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no revocation entry, got %d", store.Len())
	}
}

func TestVerifyRejectsOtherTokenTypes(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	codec, err := jwt.NewCodec(jwt.Config{PrivateKey: []byte(strings.Repeat("s", 32)), Now: clock.Now})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := NewService(codec, NewMemoryRevocationStore(clock.Now), Config{Now: clock.Now})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	reset, _, err := codec.Issue(jwt.TypePasswordReset, jwt.Subject{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(context.Background(), reset); !errors.Is(err, autherr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Duration) error {
	return errors.New("redis down")
}

func (failingRevocations) IsRevoked(context.Context, ...string) (bool, error) {
	return false, errors.New("redis down")
}

func TestVerifyRevocationBackendFailureIsNotDomainError(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService(t, clock, failingRevocations{})

	token, _, _ := svc.Issue("u1", "", "", "s1")
	_, err := svc.Verify(context.Background(), token)
	if err == nil || autherr.IsDomain(err) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
}

func TestRedisRevocationStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewRedisRevocationStore(rdb, "")
	ctx := context.Background()

	if revoked, err := store.IsRevoked(ctx, TokenKey("j1")); err != nil || revoked {
		t.Fatalf("expected not revoked, got %v %v", revoked, err)
	}
	if err := store.Revoke(ctx, TokenKey("j1"), time.Minute); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if revoked, err := store.IsRevoked(ctx, SessionKey("s9"), TokenKey("j1")); err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}
	if !mr.Exists("goidentity:revoked:jti:j1") {
		t.Fatal("expected prefixed key in redis")
	}

	mr.FastForward(2 * time.Minute)
	if revoked, err := store.IsRevoked(ctx, TokenKey("j1")); err != nil || revoked {
		t.Fatalf("expected entry to expire, got %v %v", revoked, err)
	}
}

func TestRedisRevocationStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	store := NewRedisRevocationStore(rdb, "")
	if _, err := store.IsRevoked(context.Background(), TokenKey("j1")); err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
}

func TestMemoryRevocationStoreExpiry(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryRevocationStore(clock.Now)
	ctx := context.Background()

	_ = store.Revoke(ctx, "k", time.Minute)
	if revoked, _ := store.IsRevoked(ctx, "k"); !revoked {
		t.Fatal("expected revoked")
	}
	clock.now = clock.now.Add(time.Minute)
	if revoked, _ := store.IsRevoked(ctx, "k"); revoked {
		t.Fatal("expected expired entry to be ignored")
	}
	if store.Len() != 0 {
		t.Fatalf("expected expired entry dropped, got %d", store.Len())
	}
}
