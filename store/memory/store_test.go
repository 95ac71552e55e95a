package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/refresh"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/user"
)

var t0 = time.Unix(1_700_000_000, 0)

func seedUser(t *testing.T, s *Store, id, email string) {
	t.Helper()
	if err := s.Users().Create(context.Background(), &user.User{ID: id, Email: email, PasswordHash: "h", CreatedAt: t0}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestUserCreateNormalisesAndRejectsDuplicates(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	seedUser(t, s, "u1", " A@X.com")

	u, err := s.Users().GetByEmail(ctx, "a@x.COM")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if u.Email != "a@x.com" || u.Status != user.StatusActive {
		t.Fatalf("unexpected user %+v", u)
	}
	if err := s.Users().Create(ctx, &user.User{ID: "u2", Email: "a@x.com"}); !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := s.Users().GetByID(ctx, "missing"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementFailedAttemptsConcurrentLocksOnce(t *testing.T) {
	s := New(nil)
	seedUser(t, s, "u1", "a@x.com")
	lockUntil := t0.Add(15 * time.Minute)

	var wg sync.WaitGroup
	locked := make(chan int, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := s.Users().IncrementFailedAttempts(context.Background(), "u1", 5, lockUntil, t0)
			if err != nil {
				t.Errorf("IncrementFailedAttempts: %v", err)
				return
			}
			if st.Status == user.StatusLocked {
				locked <- st.Attempts
			}
		}()
	}
	wg.Wait()
	close(locked)

	var seen []int
	for n := range locked {
		seen = append(seen, n)
	}
	if len(seen) != 1 || seen[0] != 5 {
		t.Fatalf("expected exactly the fifth failure to observe the lock, got %v", seen)
	}

	u, _ := s.Users().GetByID(context.Background(), "u1")
	if u.FailedLoginAttempts != 5 || !u.LockedAt(t0) {
		t.Fatalf("expected locked row with 5 attempts, got %+v", u)
	}
}

func TestResetFailedAttemptsRefusesActiveLock(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.com")

	for i := 0; i < 5; i++ {
		_, _ = s.Users().IncrementFailedAttempts(ctx, "u1", 5, t0.Add(time.Minute), t0)
	}
	ok, err := s.Users().ResetFailedAttempts(ctx, "u1", t0)
	if err != nil || ok {
		t.Fatalf("expected refusal while locked, got %v %v", ok, err)
	}

	cleared, err := s.Users().ClearExpiredLock(ctx, "u1", t0.Add(time.Minute))
	if err != nil || !cleared {
		t.Fatalf("expected elapsed lock to clear, got %v %v", cleared, err)
	}
	u, _ := s.Users().GetByID(ctx, "u1")
	if u.Status != user.StatusActive || u.FailedLoginAttempts != 0 || u.LockedUntil != nil {
		t.Fatalf("unexpected user after clear %+v", u)
	}
}

func TestCreateCappedRejectsAtCap(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sess := &session.Session{ID: string(rune('a' + i)), UserID: "u1", CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)}
		if err := s.Sessions().CreateCapped(ctx, sess, 3, t0); err != nil {
			t.Fatalf("CreateCapped %d: %v", i, err)
		}
	}
	extra := &session.Session{ID: "d", UserID: "u1", ExpiresAt: t0.Add(time.Hour)}
	if err := s.Sessions().CreateCapped(ctx, extra, 3, t0); !errors.Is(err, session.ErrCapReached) {
		t.Fatalf("expected ErrCapReached, got %v", err)
	}

	if _, err := s.Sessions().Revoke(ctx, "a", t0); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := s.Sessions().CreateCapped(ctx, extra, 3, t0); err != nil {
		t.Fatalf("expected slot after revoke, got %v", err)
	}

	expired := &session.Session{ID: "e", UserID: "u2", ExpiresAt: t0.Add(-time.Second)}
	_ = s.Sessions().CreateCapped(ctx, expired, 1, t0.Add(-time.Hour))
	if err := s.Sessions().CreateCapped(ctx, &session.Session{ID: "f", UserID: "u2", ExpiresAt: t0.Add(time.Hour)}, 1, t0); err != nil {
		t.Fatalf("expired sessions must not count toward the cap: %v", err)
	}
}

func TestRefreshConsumeOnce(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	_ = s.RefreshTokens().Create(ctx, &refresh.Record{ID: "r1", UserID: "u1", SessionID: "s1", ExpiresAt: t0.Add(time.Hour)})

	first, err := s.RefreshTokens().Consume(ctx, "r1", t0)
	if err != nil || !first {
		t.Fatalf("expected first consume to win, got %v %v", first, err)
	}
	second, err := s.RefreshTokens().Consume(ctx, "r1", t0)
	if err != nil || second {
		t.Fatalf("expected second consume to lose, got %v %v", second, err)
	}
	rec, _ := s.RefreshTokens().Get(ctx, "r1")
	if !rec.Revoked || rec.RevokedAt == nil {
		t.Fatalf("expected revoked record, got %+v", rec)
	}
}

func TestResetPasswordRevokesEverything(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	seedUser(t, s, "u1", "a@x.com")

	_ = s.Sessions().CreateCapped(ctx, &session.Session{ID: "s1", UserID: "u1", ExpiresAt: t0.Add(time.Hour)}, 5, t0)
	_ = s.Sessions().CreateCapped(ctx, &session.Session{ID: "s2", UserID: "u1", ExpiresAt: t0.Add(time.Hour)}, 5, t0)
	_ = s.RefreshTokens().Create(ctx, &refresh.Record{ID: "r1", UserID: "u1", SessionID: "s1", ExpiresAt: t0.Add(time.Hour)})
	for i := 0; i < 5; i++ {
		_, _ = s.Users().IncrementFailedAttempts(ctx, "u1", 5, t0.Add(time.Hour), t0)
	}

	ids, err := s.ResetPassword(ctx, "u1", "new-hash", t0)
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected two revoked sessions, got %v", ids)
	}
	u, _ := s.Users().GetByID(ctx, "u1")
	if u.PasswordHash != "new-hash" || u.Status != user.StatusActive || u.FailedLoginAttempts != 0 {
		t.Fatalf("unexpected user after reset %+v", u)
	}
	if active, _ := s.Sessions().ListActive(ctx, "u1", t0); len(active) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(active))
	}
	if ok, _ := s.RefreshTokens().Consume(ctx, "r1", t0); ok {
		t.Fatal("expected refresh record revoked by reset")
	}
	if _, err := s.ResetPassword(ctx, "missing", "h", t0); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	_ = s.Sessions().CreateCapped(ctx, &session.Session{ID: "old", UserID: "u1", ExpiresAt: t0.Add(-time.Hour)}, 5, t0.Add(-2*time.Hour))
	_ = s.Sessions().CreateCapped(ctx, &session.Session{ID: "new", UserID: "u1", ExpiresAt: t0.Add(time.Hour)}, 5, t0)
	_ = s.RefreshTokens().Create(ctx, &refresh.Record{ID: "r-old", ExpiresAt: t0.Add(-time.Hour)})

	if n, _ := s.Sessions().PurgeExpired(ctx, t0); n != 1 {
		t.Fatalf("expected one purged session, got %d", n)
	}
	if n, _ := s.RefreshTokens().PurgeExpired(ctx, t0); n != 1 {
		t.Fatalf("expected one purged refresh record, got %d", n)
	}
}
