package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"canny/backend/internal/logging"
	"canny/backend/internal/telemetry"
)

// httpRequestMetadata is the JSON body of http_request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Route      string `json:"route"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
	RequestID  string `json:"request_id,omitempty"`
}

// Telemetry emits one http_request event per request after the handler returns.
// Best-effort: emit failures are logged. A nil emitter disables the middleware.
// skipRoutes lists route patterns not to emit (e.g. /healthz). The user and
// device ids are those Gate established, if the route is gated.
func Telemetry(emitter telemetry.EventEmitter, log logging.Logger, skipRoutes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if emitter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, slot := withIdentitySlot(r.Context())
			r = r.WithContext(ctx)
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := routePattern(r)
			if skipRoutes[route] {
				return
			}
			meta := httpRequestMetadata{
				Method:     r.Method,
				Route:      route,
				Status:     statusOf(ww),
				DurationMs: time.Since(start).Milliseconds(),
				ClientIP:   ClientIPFromContext(r.Context()),
				RequestID:  chimiddleware.GetReqID(r.Context()),
			}
			metaJSON, _ := json.Marshal(meta)
			telemetry.EmitAsync(r.Context(), emitter, &telemetry.Event{
				Type:     telemetry.EventHTTPRequest,
				Source:   telemetry.SourceAPI,
				UserID:   slot.userID,
				DeviceID: slot.deviceID,
				Attrs: map[string]string{
					"http.method": meta.Method,
					"http.route":  meta.Route,
					"http.status": strconv.Itoa(meta.Status),
				},
				Metadata:  metaJSON,
				CreatedAt: time.Now().UTC(),
			}, log)
		})
	}
}
