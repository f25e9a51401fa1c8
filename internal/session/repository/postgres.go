package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"canny/backend/internal/db"
	"canny/backend/internal/session/domain"
)

const userDeviceConstraint = "device_sessions_user_device_key"

const sessionColumns = `id, user_id, device_id, device_name, refresh_token, created_at, updated_at`

type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

// Find returns the session for the user and device, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Find(ctx context.Context, userID, deviceID string) (*domain.DeviceSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM device_sessions WHERE user_id = $1 AND lower(device_id) = lower($2)`,
		userID, deviceID,
	)
	var s domain.DeviceSession
	err := row.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.DeviceName, &s.RefreshToken, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListByUser returns all sessions for the user, oldest first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.DeviceSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM device_sessions WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DeviceSession
	for rows.Next() {
		var s domain.DeviceSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.DeviceName, &s.RefreshToken, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// Create persists the session. The session must have ID set.
// Returns ErrSessionExists when the (user, device) pair is already registered.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.DeviceSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.DeviceID, s.DeviceName, s.RefreshToken, s.CreatedAt, s.UpdatedAt,
	)
	if db.IsUniqueViolation(err, userDeviceConstraint) {
		return ErrSessionExists
	}
	return err
}

// Delete removes the session for the user and device and returns the number of rows removed.
// Deleting a missing session is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, userID, deviceID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM device_sessions WHERE user_id = $1 AND lower(device_id) = lower($2)`,
		userID, deviceID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateRefreshToken replaces the stored refresh token for the user and device,
// but only while it still equals current. It returns the number of rows changed;
// 0 means the session is gone or another writer replaced the token first.
func (r *PostgresRepository) UpdateRefreshToken(ctx context.Context, userID, deviceID, current, next string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE device_sessions SET refresh_token = $4, updated_at = $5
		 WHERE user_id = $1 AND lower(device_id) = lower($2) AND refresh_token = $3`,
		userID, deviceID, current, next, r.now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
