// Package server assembles the HTTP API router and the gRPC ops server.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	aggregatorhandler "canny/backend/internal/aggregator/handler"
	"canny/backend/internal/audit"
	"canny/backend/internal/health"
	healthhandler "canny/backend/internal/health/handler"
	identityhandler "canny/backend/internal/identity/handler"
	"canny/backend/internal/logging"
	"canny/backend/internal/server/httpx"
	"canny/backend/internal/server/middleware"
	"canny/backend/internal/telemetry"
)

// HealthRoute is served without telemetry events.
const HealthRoute = "/healthz"

// Deps holds the handlers and cross-cutting dependencies of the HTTP API.
type Deps struct {
	Auth       *identityhandler.Handler
	Aggregator *aggregatorhandler.Handler
	// Verifier backs the session gate on /api/plaid.
	Verifier middleware.Verifier
	// Health backs /healthz. Nil always reports ok.
	Health *health.Checker
	// AuditLogger records gated requests. Nil disables request auditing.
	AuditLogger audit.AuditLogger
	// Emitter receives http_request and gate_refresh events. Nil disables them.
	Emitter telemetry.EventEmitter
	// GateOptions are passed to the gate (e.g. a test meter).
	GateOptions []middleware.GateOption
	// CORSOrigins lists allowed origins; empty or "*" allows all.
	CORSOrigins []string
	// ServiceName names the otelhttp server spans.
	ServiceName string
	Log         logging.Logger
}

// NewRouter returns the API handler:
//
//	POST /api/auth/create-account, /api/auth/login, /api/auth/logout  (public)
//	/api/plaid/*                                                        (gated, audited)
//	GET  /api/plaid/oauth-redirect, /healthz                            (public)
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logging.Nop()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ClientIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Telemetry(d.Emitter, log, map[string]bool{HealthRoute: true}))
	r.Use(cors.Handler(corsOptions(d.CORSOrigins)))

	r.Get(HealthRoute, healthhandler.HTTP(d.Health, log))

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/create-account", d.Auth.CreateAccount)
		r.Post("/login", d.Auth.Login)
		r.Post("/logout", d.Auth.Logout)
	})

	gateOpts := append([]middleware.GateOption{middleware.WithEventEmitter(d.Emitter)}, d.GateOptions...)
	r.Route("/api/plaid", func(r chi.Router) {
		r.Get("/oauth-redirect", d.Aggregator.OAuthRedirect)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Gate(d.Verifier, log, gateOpts...))
			r.Use(middleware.Audit(d.AuditLogger))
			r.Post("/get-link-token", d.Aggregator.LinkToken)
			r.Get("/exchange-public-for-access-token", d.Aggregator.Exchange)
			r.Get("/get-access-tokens", d.Aggregator.AccessTokens)
			r.Post("/get-account-summary", d.Aggregator.AccountSummary)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, http.StatusNotFound, httpx.CodeNotFound, "route not found")
	})

	name := d.ServiceName
	if name == "" {
		name = "canny-api"
	}
	return otelhttp.NewHandler(r, name)
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Content-Type",
			httpx.HeaderAccessToken, httpx.HeaderRefreshToken,
			httpx.HeaderDeviceID, httpx.HeaderDeviceName, httpx.HeaderDeviceModel,
			aggregatorhandler.HeaderPublicToken,
		},
		// Clients must read the refreshed access token.
		ExposedHeaders: []string{httpx.HeaderAccessToken},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}
}
