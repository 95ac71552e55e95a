package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/goIdentity/refresh"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/user"
	"github.com/MrEthical07/goIdentity/verification"
)

type state struct {
	mu       sync.Mutex
	users    map[string]*user.User
	emails   map[string]string
	sessions map[string]*session.Session
	refresh  map[string]*refresh.Record
}

// Store groups the in-memory ports.
type Store struct {
	st       *state
	users    *users
	sessions *sessions
	refresh  *refreshTokens
	consumed *verification.MemoryConsumedStore
}

// New returns an empty Store. now drives expiry of consumed token ids; nil uses
// time.Now.
func New(now func() time.Time) *Store {
	st := &state{
		users:    make(map[string]*user.User),
		emails:   make(map[string]string),
		sessions: make(map[string]*session.Session),
		refresh:  make(map[string]*refresh.Record),
	}
	return &Store{
		st:       st,
		users:    &users{st: st},
		sessions: &sessions{st: st},
		refresh:  &refreshTokens{st: st},
		consumed: verification.NewMemoryConsumedStore(now),
	}
}

// Users returns the user port.
func (s *Store) Users() user.Store { return s.users }

// Sessions returns the session port.
func (s *Store) Sessions() session.Store { return s.sessions }

// RefreshTokens returns the refresh record port.
func (s *Store) RefreshTokens() refresh.Store { return s.refresh }

// ConsumedTokens returns the consumed verification token set.
func (s *Store) ConsumedTokens() verification.ConsumedStore { return s.consumed }

// PurgeConsumed drops consumed ids of tokens that expired before the cutoff.
func (s *Store) PurgeConsumed(ctx context.Context, before time.Time) (int64, error) {
	return s.consumed.PurgeExpired(ctx, before)
}

// ResetPassword replaces the hash, clears lockout state and revokes every
// session and refresh record of the user in one step. It returns the ids of the
// sessions it revoked.
func (s *Store) ResetPassword(_ context.Context, userID, passwordHash string, now time.Time) ([]string, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	u, ok := s.st.users[userID]
	if !ok {
		return nil, user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	if u.Status == user.StatusLocked {
		u.Status = user.StatusActive
	}
	u.UpdatedAt = now

	ids := s.st.revokeSessionsLocked(userID)
	s.st.revokeRefreshLocked(refresh.Filter{UserID: userID}, now)
	return ids, nil
}

func (st *state) revokeSessionsLocked(userID string) []string {
	var ids []string
	for id, sess := range st.sessions {
		if sess.UserID == userID && !sess.Revoked {
			sess.Revoked = true
			ids = append(ids, id)
		}
	}
	return ids
}

func (st *state) revokeRefreshLocked(f refresh.Filter, now time.Time) int64 {
	var n int64
	for _, rec := range st.refresh {
		if rec.Revoked {
			continue
		}
		if f.UserID != "" && rec.UserID != f.UserID {
			continue
		}
		if f.SessionID != "" && rec.SessionID != f.SessionID {
			continue
		}
		at := now
		rec.Revoked = true
		rec.RevokedAt = &at
		n++
	}
	return n
}

type users struct{ st *state }

func copyUser(u *user.User) *user.User {
	c := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		c.EmailVerifiedAt = &t
	}
	return &c
}

func (s *users) GetByEmail(_ context.Context, email string) (*user.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	id, ok := s.st.emails[user.NormalizeEmail(email)]
	if !ok {
		return nil, user.ErrNotFound
	}
	return copyUser(s.st.users[id]), nil
}

func (s *users) GetByID(_ context.Context, id string) (*user.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *users) Create(_ context.Context, u *user.User) error {
	if u == nil || u.ID == "" {
		return errors.New("user id is required")
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	email := user.NormalizeEmail(u.Email)
	if _, taken := s.st.emails[email]; taken {
		return user.ErrEmailTaken
	}
	if _, exists := s.st.users[u.ID]; exists {
		return errors.New("user id already exists")
	}
	c := copyUser(u)
	c.Email = email
	if c.Status == "" {
		c.Status = user.StatusActive
	}
	s.st.users[c.ID] = c
	s.st.emails[email] = c.ID
	return nil
}

func (s *users) UpdateStatus(_ context.Context, id string, status user.Status, now time.Time) error {
	if !status.Valid() {
		return errors.New("invalid user status")
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Status = status
	if status == user.StatusActive {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	}
	u.UpdatedAt = now
	return nil
}

func (s *users) UpdatePasswordHash(_ context.Context, id, hash string, now time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = now
	return nil
}

func (s *users) MarkEmailVerified(_ context.Context, id string, at time.Time) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return false, user.ErrNotFound
	}
	if u.EmailVerifiedAt != nil {
		return false, nil
	}
	t := at
	u.EmailVerifiedAt = &t
	u.UpdatedAt = at
	return true, nil
}

func (s *users) IncrementFailedAttempts(_ context.Context, id string, threshold int, lockUntil, now time.Time) (user.LockState, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return user.LockState{}, user.ErrNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold && u.Status != user.StatusDisabled && !u.LockedAt(now) {
		t := lockUntil
		u.Status = user.StatusLocked
		u.LockedUntil = &t
	}
	u.UpdatedAt = now

	state := user.LockState{Attempts: u.FailedLoginAttempts, Status: u.Status}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		state.LockedUntil = &t
	}
	return state, nil
}

func (s *users) ResetFailedAttempts(_ context.Context, id string, now time.Time) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return false, user.ErrNotFound
	}
	if u.LockedAt(now) {
		return false, nil
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	if u.Status == user.StatusLocked {
		u.Status = user.StatusActive
	}
	u.UpdatedAt = now
	return true, nil
}

func (s *users) ClearExpiredLock(_ context.Context, id string, now time.Time) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return false, user.ErrNotFound
	}
	if u.Status != user.StatusLocked || u.LockedAt(now) {
		return false, nil
	}
	u.Status = user.StatusActive
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = now
	return true, nil
}

type sessions struct{ st *state }

func (s *sessions) CreateCapped(_ context.Context, sess *session.Session, max int, now time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if _, exists := s.st.sessions[sess.ID]; exists {
		return errors.New("session id already exists")
	}
	active := 0
	for _, existing := range s.st.sessions {
		if existing.UserID == sess.UserID && existing.ActiveAt(now) {
			active++
		}
	}
	if max > 0 && active >= max {
		return session.ErrCapReached
	}
	c := *sess
	s.st.sessions[c.ID] = &c
	return nil
}

func (s *sessions) Get(_ context.Context, id string) (*session.Session, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	sess, ok := s.st.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	c := *sess
	return &c, nil
}

func (s *sessions) Touch(_ context.Context, id string, lastActiveAt, expiresAt time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	sess, ok := s.st.sessions[id]
	if !ok || sess.Revoked {
		return session.ErrNotFound
	}
	sess.LastActiveAt = lastActiveAt
	sess.ExpiresAt = expiresAt
	return nil
}

func (s *sessions) Revoke(_ context.Context, id string, _ time.Time) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	sess, ok := s.st.sessions[id]
	if !ok || sess.Revoked {
		return false, nil
	}
	sess.Revoked = true
	return true, nil
}

func (s *sessions) RevokeAllForUser(_ context.Context, userID string, _ time.Time) ([]string, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.revokeSessionsLocked(userID), nil
}

func (s *sessions) ListActive(_ context.Context, userID string, now time.Time) ([]session.Session, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	var out []session.Session
	for _, sess := range s.st.sessions {
		if sess.UserID == userID && sess.ActiveAt(now) {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *sessions) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	var n int64
	for id, sess := range s.st.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.st.sessions, id)
			n++
		}
	}
	return n, nil
}

type refreshTokens struct{ st *state }

func (s *refreshTokens) Create(_ context.Context, r *refresh.Record) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if _, exists := s.st.refresh[r.ID]; exists {
		return errors.New("refresh record id already exists")
	}
	c := *r
	s.st.refresh[c.ID] = &c
	return nil
}

func (s *refreshTokens) Get(_ context.Context, id string) (*refresh.Record, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	rec, ok := s.st.refresh[id]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (s *refreshTokens) Consume(_ context.Context, id string, now time.Time) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	rec, ok := s.st.refresh[id]
	if !ok || rec.Revoked {
		return false, nil
	}
	at := now
	rec.Revoked = true
	rec.RevokedAt = &at
	return true, nil
}

func (s *refreshTokens) Revoke(_ context.Context, f refresh.Filter, now time.Time) (int64, error) {
	if f.Empty() {
		return 0, errors.New("refresh revoke filter is empty")
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.revokeRefreshLocked(f, now), nil
}

func (s *refreshTokens) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	var n int64
	for id, rec := range s.st.refresh {
		if rec.ExpiresAt.Before(before) {
			delete(s.st.refresh, id)
			n++
		}
	}
	return n, nil
}
