package service

import "errors"

// Sentinel errors for the auth service and the session gate; handlers map them to HTTP codes.
var (
	// ErrAuthFailed covers unknown email and wrong password alike.
	ErrAuthFailed             = errors.New("invalid email or password")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrMissingCredentials     = errors.New("access and refresh tokens are required")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrSessionExpired         = errors.New("session expired")
)

// errSessionGone is returned when a logout removes the session while a login is
// replacing its refresh token.
var errSessionGone = errors.New("session removed during login")

// ValidationError reports a bad or missing input field. Message is safe to show to clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
