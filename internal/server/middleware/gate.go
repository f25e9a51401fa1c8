package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"canny/backend/internal/identity/service"
	"canny/backend/internal/logging"
	"canny/backend/internal/server/httpx"
	"canny/backend/internal/telemetry"
)

// Verifier checks an access/refresh token pair. Implemented by *service.SessionVerifier.
type Verifier interface {
	Verify(ctx context.Context, accessToken, refreshToken string) (*service.GateResult, error)
}

// Gate outcomes recorded on the decision counter.
const (
	outcomeAllow              = "allow"
	outcomeRefresh            = "refresh"
	outcomeMissingCredentials = "missing_credentials"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeSessionExpired     = "session_expired"
	outcomeError              = "error"
)

type gateConfig struct {
	meter   metric.Meter
	emitter telemetry.EventEmitter
}

// GateOption configures Gate.
type GateOption func(*gateConfig)

// WithMeter records decisions on m instead of the global meter provider.
func WithMeter(m metric.Meter) GateOption {
	return func(c *gateConfig) { c.meter = m }
}

// WithEventEmitter emits a gate_refresh event whenever an access token is minted.
func WithEventEmitter(e telemetry.EventEmitter) GateOption {
	return func(c *gateConfig) { c.emitter = e }
}

// Gate returns middleware that admits a request only with a valid token pair in
// the access-token and refresh-token headers. An expired access token is replaced
// and the replacement is sent back in the access-token response header; clients
// must persist it. Allowed requests carry the identity in the context.
func Gate(v Verifier, log logging.Logger, opts ...GateOption) func(http.Handler) http.Handler {
	if log == nil {
		log = logging.Nop()
	}
	cfg := gateConfig{meter: otel.GetMeterProvider().Meter("canny.gate")}
	for _, opt := range opts {
		opt(&cfg)
	}
	decisions, err := cfg.meter.Int64Counter("canny.gate.decisions",
		metric.WithDescription("Session gate decisions by outcome"))
	if err != nil {
		log.Warn(context.Background(), "gate: decision counter unavailable", "error", err)
	}
	count := func(ctx context.Context, outcome string) {
		if decisions != nil {
			decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			res, err := v.Verify(ctx, r.Header.Get(httpx.HeaderAccessToken), r.Header.Get(httpx.HeaderRefreshToken))
			if err != nil {
				outcome := writeGateError(w, err)
				count(ctx, outcome)
				if outcome == outcomeError {
					log.Error(ctx, "gate: verify failed", "error", err)
				}
				return
			}

			if res.Refreshed() {
				w.Header().Set(httpx.HeaderAccessToken, res.NewAccessToken)
				count(ctx, outcomeRefresh)
				telemetry.EmitAsync(ctx, cfg.emitter, &telemetry.Event{
					Type:      telemetry.EventGateRefresh,
					Source:    telemetry.SourceAPI,
					UserID:    res.UserID,
					DeviceID:  res.DeviceID,
					CreatedAt: time.Now().UTC(),
				}, log)
			} else {
				count(ctx, outcomeAllow)
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, res.UserID, res.DeviceID)))
		})
	}
}

// writeGateError writes the 401 or 500 body for err and returns the outcome label.
func writeGateError(w http.ResponseWriter, err error) string {
	switch {
	case errors.Is(err, service.ErrMissingCredentials):
		httpx.Error(w, http.StatusUnauthorized, httpx.CodeMissingCredentials, "access and refresh tokens are required")
		return outcomeMissingCredentials
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.Error(w, http.StatusUnauthorized, httpx.CodeInvalidCredentials, "invalid credentials")
		return outcomeInvalidCredentials
	case errors.Is(err, service.ErrSessionExpired):
		httpx.Error(w, http.StatusUnauthorized, httpx.CodeSessionExpired, "session expired, please log in again")
		return outcomeSessionExpired
	default:
		httpx.Upstream(w)
		return outcomeError
	}
}
