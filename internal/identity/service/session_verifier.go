package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"canny/backend/internal/security"
	sessiondomain "canny/backend/internal/session/domain"
)

// SessionFinder reads device sessions. The verifier never writes.
type SessionFinder interface {
	Find(ctx context.Context, userID, deviceID string) (*sessiondomain.DeviceSession, error)
}

// GateResult is the identity of an allowed request. NewAccessToken is set when
// the presented access token had expired and a replacement was minted.
type GateResult struct {
	UserID         string
	DeviceID       string
	NewAccessToken string
}

// Refreshed reports whether a new access token was minted.
func (r *GateResult) Refreshed() bool {
	return r.NewAccessToken != ""
}

// SessionVerifier decides whether an (access, refresh) token pair may proceed.
type SessionVerifier struct {
	sessions     SessionFinder
	tokens       *security.TokenCodec
	accessTTL    time.Duration
	storeTimeout time.Duration
}

// NewSessionVerifier returns a verifier that mints access tokens with accessTTL.
func NewSessionVerifier(sessions SessionFinder, tokens *security.TokenCodec, accessTTL, storeTimeout time.Duration) *SessionVerifier {
	return &SessionVerifier{
		sessions:     sessions,
		tokens:       tokens,
		accessTTL:    accessTTL,
		storeTimeout: storeTimeout,
	}
}

// Verify checks the token pair.
//
//   - either token missing: ErrMissingCredentials
//   - access token tampered or malformed: ErrInvalidCredentials, never refreshed
//   - refresh token invalid, expired or no longer stored for its device: ErrSessionExpired
//   - access and refresh tokens naming different identities: ErrInvalidCredentials
//   - access token expired, refresh token good: allowed with a new access token
//
// Any other error is a store failure.
func (v *SessionVerifier) Verify(ctx context.Context, accessToken, refreshToken string) (*GateResult, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, ErrMissingCredentials
	}

	access, err := v.tokens.Verify(accessToken)
	accessExpired := errors.Is(err, security.ErrTokenExpired)
	switch {
	case err == nil:
	case accessExpired:
		// The signature checked out, so the claims are trustworthy.
		if access, err = v.tokens.DecodeUnsafe(accessToken); err != nil {
			return nil, ErrInvalidCredentials
		}
	default:
		return nil, ErrInvalidCredentials
	}

	refresh, err := v.tokens.Verify(refreshToken)
	if err != nil {
		return nil, ErrSessionExpired
	}
	if access.UserID != refresh.UserID || !strings.EqualFold(access.DeviceID, refresh.DeviceID) {
		return nil, ErrInvalidCredentials
	}

	storeCtx, cancel := context.WithTimeout(ctx, v.timeout())
	sess, err := v.sessions.Find(storeCtx, refresh.UserID, refresh.DeviceID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess == nil || !security.TokensEqual(refreshToken, sess.RefreshToken) {
		return nil, ErrSessionExpired
	}

	res := &GateResult{UserID: refresh.UserID, DeviceID: refresh.DeviceID}
	if accessExpired {
		res.NewAccessToken, err = v.tokens.Issue(refresh, v.accessTTL)
		if err != nil {
			return nil, fmt.Errorf("issue access token: %w", err)
		}
	}
	return res, nil
}

func (v *SessionVerifier) timeout() time.Duration {
	if v.storeTimeout <= 0 {
		return 5 * time.Second
	}
	return v.storeTimeout
}
