package domain

import (
	"strings"
	"time"
)

// DeviceSession binds a user to one client device and holds that device's
// refresh token. There is at most one per (UserID, DeviceID).
type DeviceSession struct {
	ID           string
	UserID       string
	DeviceID     string
	DeviceName   string // "<device-name> - <device-model>", informational only
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SameDevice reports whether deviceID names this session's device. Device ids
// compare case-insensitively.
func (s *DeviceSession) SameDevice(deviceID string) bool {
	return strings.EqualFold(s.DeviceID, deviceID)
}

// DeviceLabel builds the stored device label from the client's name and model headers.
func DeviceLabel(name, model string) string {
	name, model = strings.TrimSpace(name), strings.TrimSpace(model)
	switch {
	case name == "" && model == "":
		return ""
	case model == "":
		return name
	case name == "":
		return model
	}
	return name + " - " + model
}
