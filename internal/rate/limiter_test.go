package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := New(rdb, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.CheckLimit(ctx, "login:ip:10.0.0.1", 3, time.Minute)
		if err != nil || !d.Allowed {
			t.Fatalf("hit %d: expected allowed, got %+v %v", i, d, err)
		}
	}
	d, err := l.CheckLimit(ctx, "login:ip:10.0.0.1", 3, time.Minute)
	if err != nil {
		t.Fatalf("CheckLimit: %v", err)
	}
	if d.Allowed || d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("expected denial with retry-after, got %+v", d)
	}

	if d, _ := l.CheckLimit(ctx, "login:ip:10.0.0.2", 3, time.Minute); !d.Allowed {
		t.Fatal("keys must be independent")
	}

	mr.FastForward(time.Minute + time.Second)
	if d, _ := l.CheckLimit(ctx, "login:ip:10.0.0.1", 3, time.Minute); !d.Allowed {
		t.Fatal("expected a new window after expiry")
	}
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	_, err = New(rdb, "").CheckLimit(context.Background(), "k", 1, time.Second)
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestMemoryLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewMemory(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d, _ := l.CheckLimit(ctx, "k", 2, time.Minute); !d.Allowed {
			t.Fatalf("hit %d denied", i)
		}
	}
	now = now.Add(20 * time.Second)
	d, _ := l.CheckLimit(ctx, "k", 2, time.Minute)
	if d.Allowed || d.RetryAfter != 40*time.Second {
		t.Fatalf("expected denial with 40s retry, got %+v", d)
	}

	now = now.Add(40 * time.Second)
	if d, _ := l.CheckLimit(ctx, "k", 2, time.Minute); !d.Allowed {
		t.Fatal("expected new window")
	}
	if _, err := l.CheckLimit(ctx, "k", 0, time.Minute); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if n := l.Sweep(); n != 1 {
		t.Fatalf("expected one swept window, got %d", n)
	}
}
