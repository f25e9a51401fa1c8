// server runs the HTTP API and the gRPC ops server.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"canny/backend/internal/aggregator"
	aggregatorhandler "canny/backend/internal/aggregator/handler"
	aggregatorrepo "canny/backend/internal/aggregator/repository"
	aggregatorservice "canny/backend/internal/aggregator/service"
	"canny/backend/internal/audit"
	auditrepo "canny/backend/internal/audit/repository"
	"canny/backend/internal/config"
	"canny/backend/internal/db"
	"canny/backend/internal/db/migrate"
	"canny/backend/internal/health"
	identityhandler "canny/backend/internal/identity/handler"
	identityservice "canny/backend/internal/identity/service"
	"canny/backend/internal/logging"
	"canny/backend/internal/security"
	"canny/backend/internal/server"
	"canny/backend/internal/server/middleware"
	sessionrepo "canny/backend/internal/session/repository"
	"canny/backend/internal/telemetry"
	telemetryotel "canny/backend/internal/telemetry/otel"
	userrepo "canny/backend/internal/user/repository"
)

// shutdownTimeout bounds draining in-flight HTTP requests.
const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.RequireSecret(); err != nil {
		log.Fatal(err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	secret, err := security.LoadSecret(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("jwt secret: %v", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	emitter := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	if cfg.MigrateOnStart {
		if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migrate: %v", err)
		}
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	codec, err := security.NewTokenCodec(secret)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	sessions := sessionrepo.NewPostgresRepository(conn)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), middleware.ClientIPFromContext, logger)
	authSvc := identityservice.NewAuthService(
		userrepo.NewPostgresRepository(conn),
		sessions,
		security.NewHasher(cfg.BcryptCost),
		codec,
		auditLogger,
		logger,
		cfg.AccessTTL(), cfg.RefreshTTL(), cfg.StoreTimeout(),
	)
	verifier := identityservice.NewSessionVerifier(sessions, codec, cfg.AccessTTL(), cfg.StoreTimeout())

	plaid := aggregator.NewPlaidClient(aggregator.ClientConfig{
		ClientID:     cfg.PlaidClientID,
		Secret:       cfg.PlaidSecret,
		BaseURL:      cfg.PlaidBaseURL,
		ClientName:   cfg.PlaidClientName,
		RedirectURI:  cfg.PlaidRedirectURI,
		CountryCodes: cfg.PlaidCountryCodeList(),
		Products:     cfg.PlaidProductList(),
	})
	if !plaid.Configured() {
		logger.Warn(ctx, "PLAID_CLIENT_ID or PLAID_SECRET not set; aggregator routes will fail")
	}
	aggSvc := aggregatorservice.New(plaid, aggregatorrepo.NewPostgresRepository(conn), logger, cfg.StoreTimeout())

	checker := health.NewChecker(conn)
	handler := server.NewRouter(server.Deps{
		Auth:        identityhandler.New(authSvc, logger),
		Aggregator:  aggregatorhandler.New(aggSvc, logger),
		Verifier:    verifier,
		Health:      checker,
		AuditLogger: auditLogger,
		Emitter:     emitter,
		CORSOrigins: cfg.CORSOrigins(),
		ServiceName: cfg.ServiceName,
		Log:         logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	var ops *grpc.Server
	if cfg.OpsGRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.OpsGRPCAddr)
		if err != nil {
			log.Fatalf("ops listen: %v", err)
		}
		ops = server.NewOpsServer(checker, emitter, logger)
		go func() {
			log.Printf("gRPC ops server listening on %s", cfg.OpsGRPCAddr)
			if err := ops.Serve(lis); err != nil {
				log.Fatalf("ops serve: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if ops != nil {
		ops.GracefulStop()
	}
	// Let fire-and-forget telemetry emits finish before the exporters close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	otelCtx, otelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer otelCancel()
	if err := providers.Shutdown(otelCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("server stopped")
}
