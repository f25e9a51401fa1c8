// Package telemetry defines request and auth events and the best-effort
// emitter that ships them (as OTel log records in production).
package telemetry

import (
	"context"
	"time"
)

// Event types emitted by the HTTP layer and the ops server.
const (
	EventHTTPRequest = "http_request"
	EventGateRefresh = "gate_refresh"
	EventGRPCRequest = "grpc_request"
)

// Event sources.
const (
	SourceAPI = "api"
	SourceOps = "ops"
)

// Event is a single telemetry event. UserID and DeviceID are empty for
// unauthenticated requests. Attrs are flat string attributes; Metadata is an
// optional JSON body.
type Event struct {
	Type      string
	Source    string
	UserID    string
	DeviceID  string
	Attrs     map[string]string
	Metadata  []byte
	CreatedAt time.Time
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
