package handler

import (
	"net/http"

	"canny/backend/internal/health"
	"canny/backend/internal/logging"
	"canny/backend/internal/server/httpx"
)

type statusBody struct {
	Status string `json:"status"`
}

// HTTP returns the /healthz handler: 200 {"status":"ok"} or 503 {"status":"unavailable"}.
func HTTP(checker *health.Checker, log logging.Logger) http.HandlerFunc {
	if log == nil {
		log = logging.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.Check(r.Context()); err != nil {
			log.Warn(r.Context(), "health check failed", "error", err)
			httpx.JSON(w, http.StatusServiceUnavailable, statusBody{Status: "unavailable"})
			return
		}
		httpx.JSON(w, http.StatusOK, statusBody{Status: "ok"})
	}
}
