package telemetry

import (
	"context"
	"time"

	"canny/backend/internal/logging"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops before shutting down OTel providers,
// so in-flight async telemetry emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Use from request handlers for fire-and-forget, best-effort telemetry; errors go to log.
//
// emitter and event may be nil; EmitAsync then returns without starting a goroutine.
// The emit context keeps ctx's values but not its cancellation, so a finished request
// does not abort an in-flight emit.
func EmitAsync(ctx context.Context, emitter EventEmitter, event *Event, log logging.Logger) {
	if emitter == nil || event == nil {
		return
	}
	if log == nil {
		log = logging.Nop()
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Warn(emitCtx, "telemetry: async emit failed", "event_type", event.Type, "error", err)
		}
	}()
}
