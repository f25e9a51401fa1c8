package repository

import (
	"context"
	"errors"

	"canny/backend/internal/session/domain"
)

// ErrSessionExists is returned by Create when a session already exists for the
// (user, device) pair. Callers treat it as "already registered" and re-read the row.
var ErrSessionExists = errors.New("device session already exists")

// Repository defines persistence for device sessions. Device ids match case-insensitively.
type Repository interface {
	Find(ctx context.Context, userID, deviceID string) (*domain.DeviceSession, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.DeviceSession, error)
	Create(ctx context.Context, s *domain.DeviceSession) error
	Delete(ctx context.Context, userID, deviceID string) (int64, error)
	UpdateRefreshToken(ctx context.Context, userID, deviceID, current, next string) (int64, error)
}
