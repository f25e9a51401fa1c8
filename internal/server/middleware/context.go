// Package middleware holds the HTTP middleware of the API: the session gate,
// client IP capture, request logging, telemetry and audit.
package middleware

import "context"

type contextKey struct{ name string }

var (
	userIDKey   = contextKey{"user_id"}
	deviceIDKey = contextKey{"device_id"}
	clientIPKey = contextKey{"client_ip"}
	slotKey     = contextKey{"identity_slot"}
)

// identitySlot lets middleware running outside Gate see the identity Gate
// established further down the chain.
type identitySlot struct {
	userID   string
	deviceID string
}

func withIdentitySlot(ctx context.Context) (context.Context, *identitySlot) {
	if slot, ok := ctx.Value(slotKey).(*identitySlot); ok {
		return ctx, slot
	}
	slot := &identitySlot{}
	return context.WithValue(ctx, slotKey, slot), slot
}

// WithIdentity returns a context with user_id and device_id set.
// Handlers read these via GetUserID and GetDeviceID.
func WithIdentity(ctx context.Context, userID, deviceID string) context.Context {
	if slot, ok := ctx.Value(slotKey).(*identitySlot); ok {
		slot.userID, slot.deviceID = userID, deviceID
	}
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, deviceIDKey, deviceID)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetDeviceID returns the device_id from context and true if set; otherwise "", false.
func GetDeviceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(deviceIDKey).(string)
	return v, ok
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the client IP stored by ClientIP, or "unknown".
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
