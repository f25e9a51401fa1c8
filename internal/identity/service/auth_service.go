package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"canny/backend/internal/audit"
	auditdomain "canny/backend/internal/audit/domain"
	"canny/backend/internal/logging"
	"canny/backend/internal/security"
	sessiondomain "canny/backend/internal/session/domain"
	sessionrepo "canny/backend/internal/session/repository"
	userdomain "canny/backend/internal/user/domain"
	userrepo "canny/backend/internal/user/repository"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// AuthResult holds the outcome of Login.
type AuthResult struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// LoginInput is the login request. DeviceName and DeviceModel only label the session.
type LoginInput struct {
	Email       string
	Password    string
	DeviceID    string
	DeviceName  string
	DeviceModel string
}

// CreateAccountInput is the account creation request. All fields are required.
type CreateAccountInput struct {
	FullName    string
	Email       string
	PhoneNumber string
	Password    string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// SessionRepo is the device session store used by login and logout.
type SessionRepo interface {
	Find(ctx context.Context, userID, deviceID string) (*sessiondomain.DeviceSession, error)
	ListByUser(ctx context.Context, userID string) ([]*sessiondomain.DeviceSession, error)
	Create(ctx context.Context, s *sessiondomain.DeviceSession) error
	Delete(ctx context.Context, userID, deviceID string) (int64, error)
	UpdateRefreshToken(ctx context.Context, userID, deviceID, current, next string) (int64, error)
}

// AuthService implements account creation, per-device login and logout.
type AuthService struct {
	userRepo     UserRepo
	sessionRepo  SessionRepo
	hasher       *security.Hasher
	tokens       *security.TokenCodec
	audit        audit.AuditLogger
	log          logging.Logger
	accessTTL    time.Duration
	refreshTTL   time.Duration
	storeTimeout time.Duration

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService returns an AuthService with the given dependencies.
// auditLogger and log may be nil.
func NewAuthService(
	userRepo UserRepo,
	sessionRepo SessionRepo,
	hasher *security.Hasher,
	tokens *security.TokenCodec,
	auditLogger audit.AuditLogger,
	log logging.Logger,
	accessTTL, refreshTTL, storeTimeout time.Duration,
) *AuthService {
	if log == nil {
		log = logging.Nop()
	}
	return &AuthService{
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		hasher:       hasher,
		tokens:       tokens,
		audit:        auditLogger,
		log:          log,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		storeTimeout: storeTimeout,
	}
}

// CreateAccount registers a user. A duplicate email yields ErrEmailAlreadyRegistered.
func (s *AuthService) CreateAccount(ctx context.Context, in CreateAccountInput) (*userdomain.User, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := normalizeEmail(in.Email)
	phone := strings.TrimSpace(in.PhoneNumber)
	if fullName == "" || email == "" || phone == "" || in.Password == "" {
		return nil, invalid("all fields are required")
	}
	if !emailPattern.MatchString(email) {
		return nil, invalid("invalid email format")
	}

	existing, err := s.getUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}

	hashed, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		FullName:     fullName,
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, invalid(err.Error())
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.userRepo.Create(storeCtx, user); err != nil {
		if errors.Is(err, userrepo.ErrEmailTaken) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logAudit(ctx, user.ID, auditdomain.ActionAccountCreated, "user", "")
	return user, nil
}

// Login authenticates with email and password and returns tokens bound to the device.
// The device's stored refresh token is returned unchanged while it still verifies;
// a new device gets a new session. Other devices' sessions are never touched.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, invalid("email and password are required")
	}
	deviceID := strings.TrimSpace(in.DeviceID)
	if deviceID == "" {
		return nil, invalid("device-id header is required")
	}

	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Spend the same bcrypt work as a real comparison.
		_ = s.hasher.Compare(s.dummyPasswordHash(), []byte(in.Password))
		return nil, ErrAuthFailed
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(in.Password)); err != nil {
		return nil, ErrAuthFailed
	}

	sess, action, err := s.ensureSession(ctx, user.ID, deviceID, sessiondomain.DeviceLabel(in.DeviceName, in.DeviceModel))
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.Issue(security.Payload{UserID: user.ID, DeviceID: sess.DeviceID}, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	s.logAudit(ctx, user.ID, action, "session", "device_id="+sess.DeviceID)
	return &AuthResult{
		UserID:       user.ID,
		AccessToken:  access,
		RefreshToken: sess.RefreshToken,
	}, nil
}

// ensureSession returns the user's session for deviceID, creating it when absent,
// and the audit action describing the login.
func (s *AuthService) ensureSession(ctx context.Context, userID, deviceID, label string) (*sessiondomain.DeviceSession, string, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	sessions, err := s.sessionRepo.ListByUser(storeCtx, userID)
	cancel()
	if err != nil {
		return nil, "", fmt.Errorf("list sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.SameDevice(deviceID) {
			return s.withLiveRefreshToken(ctx, sess)
		}
	}

	action := auditdomain.ActionLogin
	if len(sessions) > 0 {
		action = auditdomain.ActionLoginNewDevice
	}
	refresh, err := s.tokens.Issue(security.Payload{UserID: userID, DeviceID: deviceID}, s.refreshTTL)
	if err != nil {
		return nil, "", fmt.Errorf("issue refresh token: %w", err)
	}
	now := time.Now().UTC()
	sess := &sessiondomain.DeviceSession{
		ID:           uuid.New().String(),
		UserID:       userID,
		DeviceID:     deviceID,
		DeviceName:   label,
		RefreshToken: refresh,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	storeCtx, cancel = s.storeCtx(ctx)
	defer cancel()
	err = s.sessionRepo.Create(storeCtx, sess)
	if errors.Is(err, sessionrepo.ErrSessionExists) {
		// A concurrent login for the same device won the insert; use its row.
		existing, findErr := s.sessionRepo.Find(storeCtx, userID, deviceID)
		if findErr != nil {
			return nil, "", fmt.Errorf("find session: %w", findErr)
		}
		if existing == nil {
			return nil, "", fmt.Errorf("find session: %w", err)
		}
		return s.withLiveRefreshToken(ctx, existing)
	}
	if err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	return sess, action, nil
}

// withLiveRefreshToken reissues the stored refresh token once it no longer verifies.
// Login is the only place a refresh token is ever replaced. The replacement is
// conditional on the expired token still being stored; when a concurrent login
// replaced it first, that login's token is returned so every caller holds the
// token the gate will accept.
func (s *AuthService) withLiveRefreshToken(ctx context.Context, sess *sessiondomain.DeviceSession) (*sessiondomain.DeviceSession, string, error) {
	if _, err := s.tokens.Verify(sess.RefreshToken); err == nil {
		return sess, auditdomain.ActionLogin, nil
	}
	refresh, err := s.tokens.Issue(security.Payload{UserID: sess.UserID, DeviceID: sess.DeviceID}, s.refreshTTL)
	if err != nil {
		return nil, "", fmt.Errorf("issue refresh token: %w", err)
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	n, err := s.sessionRepo.UpdateRefreshToken(storeCtx, sess.UserID, sess.DeviceID, sess.RefreshToken, refresh)
	if err != nil {
		return nil, "", fmt.Errorf("update refresh token: %w", err)
	}
	if n == 0 {
		current, err := s.sessionRepo.Find(storeCtx, sess.UserID, sess.DeviceID)
		if err != nil {
			return nil, "", fmt.Errorf("find session: %w", err)
		}
		if current == nil {
			return nil, "", errSessionGone
		}
		if _, err := s.tokens.Verify(current.RefreshToken); err != nil {
			return nil, "", fmt.Errorf("refresh token replaced concurrently: %w", err)
		}
		return current, auditdomain.ActionLogin, nil
	}
	updated := *sess
	updated.RefreshToken = refresh
	return &updated, auditdomain.ActionLogin, nil
}

// Logout deletes the session named by the access token, which may be expired.
// An undecodable or empty token is a no-op.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	p, err := s.tokens.DecodeUnsafe(accessToken)
	if err != nil {
		return nil
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	n, err := s.sessionRepo.Delete(storeCtx, p.UserID, p.DeviceID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logAudit(ctx, p.UserID, auditdomain.ActionLogout, "session", fmt.Sprintf("device_id=%s deleted=%d", p.DeviceID, n))
	return nil
}

func (s *AuthService) getUserByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	u, err := s.userRepo.GetByEmail(storeCtx, email)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *AuthService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *AuthService) logAudit(ctx context.Context, userID, action, resource, metadata string) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, userID, action, resource, metadata)
	}
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash([]byte(uuid.New().String()))
		if err != nil {
			s.log.Error(context.Background(), "auth: build dummy hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
