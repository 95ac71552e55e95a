package limiters_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/MrEthical07/goIdentity/user"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func setup(t *testing.T) (*testClock, user.Store, *limiters.LockoutManager) {
	t.Helper()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	users := memory.New(clock.Now).Users()
	if err := users.Create(context.Background(), &user.User{ID: "u1", Email: "a@x.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	m, err := limiters.NewLockoutManager(users, limiters.LockoutConfig{Now: clock.Now})
	if err != nil {
		t.Fatalf("NewLockoutManager: %v", err)
	}
	return clock, users, m
}

func TestRecordFailureLocksAtThreshold(t *testing.T) {
	clock, users, m := setup(t)
	ctx := context.Background()

	for i := 1; i < limiters.DefaultMaxAttempts; i++ {
		res, err := m.RecordFailure(ctx, "u1")
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if res.Locked || res.Attempts != i {
			t.Fatalf("attempt %d: unexpected result %+v", i, res)
		}
	}
	res, err := m.RecordFailure(ctx, "u1")
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if !res.Locked || !res.LockedUntil.Equal(clock.now.Add(limiters.DefaultLockDuration)) {
		t.Fatalf("expected lock on fifth failure, got %+v", res)
	}

	u, _ := users.GetByID(ctx, "u1")
	if !m.IsLocked(u) {
		t.Fatal("expected IsLocked")
	}
	if err := m.RecordSuccess(ctx, "u1"); !errors.Is(err, autherr.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestRecordFailureConcurrent(t *testing.T) {
	_, _, m := setup(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	lockedCount := 0
	for i := 0; i < limiters.DefaultMaxAttempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.RecordFailure(context.Background(), "u1")
			if err != nil {
				t.Errorf("RecordFailure: %v", err)
				return
			}
			if res.Attempts == limiters.DefaultMaxAttempts {
				mu.Lock()
				if res.Locked {
					lockedCount++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if lockedCount != 1 {
		t.Fatalf("expected the fifth concurrent failure to lock, got %d", lockedCount)
	}
}

func TestClearIfExpired(t *testing.T) {
	clock, users, m := setup(t)
	ctx := context.Background()

	for i := 0; i < limiters.DefaultMaxAttempts; i++ {
		_, _ = m.RecordFailure(ctx, "u1")
	}
	u, _ := users.GetByID(ctx, "u1")
	if cleared, _ := m.ClearIfExpired(ctx, u); cleared {
		t.Fatal("lock must not clear before lockedUntil")
	}

	clock.now = clock.now.Add(limiters.DefaultLockDuration + time.Second)
	cleared, err := m.ClearIfExpired(ctx, u)
	if err != nil || !cleared {
		t.Fatalf("expected clear, got %v %v", cleared, err)
	}
	if u.Status != user.StatusActive || u.FailedLoginAttempts != 0 {
		t.Fatalf("expected caller copy updated, got %+v", u)
	}
	if res, _ := m.RecordFailure(ctx, "u1"); res.Locked || res.Attempts != 1 {
		t.Fatalf("expected fresh counter after clear, got %+v", res)
	}
}

func TestRecordSuccessResetsCounter(t *testing.T) {
	_, users, m := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = m.RecordFailure(ctx, "u1")
	}
	if err := m.RecordSuccess(ctx, "u1"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	u, _ := users.GetByID(ctx, "u1")
	if u.FailedLoginAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", u.FailedLoginAttempts)
	}
	if res, _ := m.RecordFailure(ctx, "u1"); res.Locked {
		t.Fatal("a single failure after reset must not lock")
	}
}
