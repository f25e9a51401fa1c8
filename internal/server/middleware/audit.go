package middleware

import (
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"canny/backend/internal/audit"
)

// Audit records an audit entry after each request that ran with an identity in
// context, i.e. behind Gate. Action and resource come from the route pattern.
// Writes are best-effort and never change the response.
func Audit(logger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			userID, ok := GetUserID(r.Context())
			if !ok || userID == "" {
				return
			}
			ar := audit.ParseRoute(r.Method, routePattern(r))
			logger.LogEvent(r.Context(), userID, ar.Action, ar.Resource, "status="+strconv.Itoa(statusOf(ww)))
		})
	}
}
