package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/autherr"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store/memory"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newManager(t *testing.T, clock *testClock, cfg session.Config) *session.Manager {
	t.Helper()
	cfg.Now = clock.Now
	m, err := session.NewManager(memory.New(clock.Now).Sessions(), cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreateSessionEnforcesCap(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, clock, session.Config{})
	ctx := context.Background()

	var first *session.Session
	for i := 0; i < session.DefaultMaxSessions; i++ {
		s, err := m.CreateSession(ctx, "u1", session.Meta{UserAgent: "ua", IPAddress: "10.0.0.1"})
		if err != nil {
			t.Fatalf("CreateSession %d: %v", i, err)
		}
		if first == nil {
			first = s
		}
	}

	if _, err := m.CreateSession(ctx, "u1", session.Meta{}); !errors.Is(err, autherr.ErrMaxSessionsExceeded) {
		t.Fatalf("expected ErrMaxSessionsExceeded, got %v", err)
	}
	if _, err := m.CreateSession(ctx, "u2", session.Meta{}); err != nil {
		t.Fatalf("cap must be per user: %v", err)
	}

	if err := m.InvalidateSession(ctx, first.ID); err != nil {
		t.Fatalf("InvalidateSession: %v", err)
	}
	if _, err := m.CreateSession(ctx, "u1", session.Meta{}); err != nil {
		t.Fatalf("expected retry after terminate to succeed, got %v", err)
	}
}

func TestValidateSessionExpiryRevokes(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, clock, session.Config{Lifetime: time.Hour})
	ctx := context.Background()

	s, err := m.CreateSession(ctx, "u1", session.Meta{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := m.ValidateSession(ctx, s.ID); err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}

	clock.now = clock.now.Add(time.Hour)
	if _, err := m.ValidateSession(ctx, s.ID); !errors.Is(err, autherr.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := m.ValidateSession(ctx, s.ID); !errors.Is(err, autherr.ErrSessionNotFound) {
		t.Fatalf("expected revoked session to be not found, got %v", err)
	}
	if _, err := m.ValidateSession(ctx, "missing"); !errors.Is(err, autherr.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestExtendSession(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, clock, session.Config{Lifetime: time.Hour})
	ctx := context.Background()

	s, _ := m.CreateSession(ctx, "u1", session.Meta{})
	clock.now = clock.now.Add(50 * time.Minute)

	extended, err := m.ExtendSession(ctx, s.ID, time.Hour)
	if err != nil {
		t.Fatalf("ExtendSession: %v", err)
	}
	if !extended.ExpiresAt.Equal(clock.now.Add(time.Hour)) || !extended.LastActiveAt.Equal(clock.now) {
		t.Fatalf("unexpected extension %+v", extended)
	}

	clock.now = clock.now.Add(30 * time.Minute)
	if _, err := m.ValidateSession(ctx, s.ID); err != nil {
		t.Fatalf("expected extended session valid, got %v", err)
	}
}

func TestSlidingValidationMovesExpiry(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, clock, session.Config{Lifetime: time.Hour, Sliding: true})
	ctx := context.Background()

	s, _ := m.CreateSession(ctx, "u1", session.Meta{})
	for i := 0; i < 3; i++ {
		clock.now = clock.now.Add(45 * time.Minute)
		if _, err := m.ValidateSession(ctx, s.ID); err != nil {
			t.Fatalf("validation %d: %v", i, err)
		}
	}
}

func TestInvalidateAllAndList(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	m := newManager(t, clock, session.Config{})
	ctx := context.Background()

	a, _ := m.CreateSession(ctx, "u1", session.Meta{})
	clock.now = clock.now.Add(time.Second)
	b, _ := m.CreateSession(ctx, "u1", session.Meta{})
	_, _ = m.CreateSession(ctx, "u2", session.Meta{})

	list, err := m.ListActive(ctx, "u1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("unexpected listing %+v", list)
	}

	ids, err := m.InvalidateAllForUser(ctx, "u1")
	if err != nil || len(ids) != 2 {
		t.Fatalf("expected two revoked ids, got %v %v", ids, err)
	}
	if list, _ := m.ListActive(ctx, "u1"); len(list) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(list))
	}
	if list, _ := m.ListActive(ctx, "u2"); len(list) != 1 {
		t.Fatalf("other users must be untouched, got %d", len(list))
	}
	if err := m.InvalidateSession(ctx, "unknown"); err != nil {
		t.Fatalf("invalidating an unknown session must be a no-op, got %v", err)
	}
}
