package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"canny/backend/internal/security"
	sessiondomain "canny/backend/internal/session/domain"
	sessionrepo "canny/backend/internal/session/repository"
	userdomain "canny/backend/internal/user/domain"
	userrepo "canny/backend/internal/user/repository"
)

var errStore = errors.New("store unavailable")

type memUserRepo struct {
	mu      sync.Mutex
	byEmail map[string]*userdomain.User
	getErr  error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byEmail: make(map[string]*userdomain.User)}
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.byEmail[email], nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return userrepo.ErrEmailTaken
	}
	u2 := *u
	r.byEmail[u.Email] = &u2
	return nil
}

// memSessionRepo enforces one row per (user, lower(device)) like the unique index.
type memSessionRepo struct {
	mu      sync.Mutex
	rows    map[string]*sessiondomain.DeviceSession
	findErr error
	delErr  error
	updates int
	// beforeUpdate runs once at the start of the next UpdateRefreshToken.
	beforeUpdate func()
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{rows: make(map[string]*sessiondomain.DeviceSession)}
}

func sessionKey(userID, deviceID string) string {
	return userID + "\x00" + strings.ToLower(deviceID)
}

func (r *memSessionRepo) Find(ctx context.Context, userID, deviceID string) (*sessiondomain.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	s, ok := r.rows[sessionKey(userID, deviceID)]
	if !ok {
		return nil, nil
	}
	s2 := *s
	return &s2, nil
}

func (r *memSessionRepo) ListByUser(ctx context.Context, userID string) ([]*sessiondomain.DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.DeviceSession
	for _, s := range r.rows {
		if s.UserID == userID {
			s2 := *s
			out = append(out, &s2)
		}
	}
	return out, nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.DeviceSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sessionKey(s.UserID, s.DeviceID)
	if _, ok := r.rows[k]; ok {
		return sessionrepo.ErrSessionExists
	}
	s2 := *s
	r.rows[k] = &s2
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, userID, deviceID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.delErr != nil {
		return 0, r.delErr
	}
	k := sessionKey(userID, deviceID)
	if _, ok := r.rows[k]; !ok {
		return 0, nil
	}
	delete(r.rows, k)
	return 1, nil
}

func (r *memSessionRepo) UpdateRefreshToken(ctx context.Context, userID, deviceID, current, next string) (int64, error) {
	r.mu.Lock()
	hook := r.beforeUpdate
	r.beforeUpdate = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[sessionKey(userID, deviceID)]
	if !ok || s.RefreshToken != current {
		return 0, nil
	}
	s.RefreshToken = next
	s.UpdatedAt = time.Now().UTC()
	r.updates++
	return 1, nil
}

// setRefreshToken overwrites a stored token directly, standing in for another writer.
func (r *memSessionRepo) setRefreshToken(userID, deviceID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[sessionKey(userID, deviceID)]; ok {
		s.RefreshToken = token
	}
}

func (r *memSessionRepo) count(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.rows {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

type auditEvent struct {
	userID, action, resource, metadata string
}

type memAudit struct {
	mu     sync.Mutex
	events []auditEvent
}

func (a *memAudit) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, auditEvent{userID, action, resource, metadata})
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.action
	}
	return out
}

func (a *memAudit) has(action string) bool {
	for _, got := range a.actions() {
		if got == action {
			return true
		}
	}
	return false
}

// fakeClock is a settable clock shared by the token codec in tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const (
	testAccessTTL  = time.Hour
	testRefreshTTL = 90 * 24 * time.Hour
)

type harness struct {
	users    *memUserRepo
	sessions *memSessionRepo
	audit    *memAudit
	clock    *fakeClock
	tokens   *security.TokenCodec
	auth     *AuthService
	gate     *SessionVerifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		users:    newMemUserRepo(),
		sessions: newMemSessionRepo(),
		audit:    &memAudit{},
		clock:    &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	tokens, err := security.NewTokenCodec([]byte("service-test-secret"), security.WithClock(h.clock.Now))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	h.tokens = tokens
	h.auth = NewAuthService(h.users, h.sessions, security.NewHasher(security.MinPasswordCost), tokens, h.audit, nil,
		testAccessTTL, testRefreshTTL, time.Second)
	h.gate = NewSessionVerifier(h.sessions, tokens, testAccessTTL, time.Second)
	return h
}

func (h *harness) mustCreate(t *testing.T, email, password string) *userdomain.User {
	t.Helper()
	u, err := h.auth.CreateAccount(context.Background(), CreateAccountInput{
		FullName: "Ada Lovelace", Email: email, PhoneNumber: "+15550100", Password: password,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", email, err)
	}
	return u
}
