package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/pulseboard/device-service/internal/client"
	"github.com/pulseboard/device-service/internal/config"
	"github.com/pulseboard/device-service/internal/handler"
	"github.com/pulseboard/device-service/internal/identity"
	"github.com/pulseboard/device-service/internal/middleware"
	"github.com/pulseboard/device-service/internal/repository"
	"github.com/pulseboard/device-service/internal/service"
	"github.com/pulseboard/device-service/internal/telemetry"
	"github.com/pulseboard/device-service/internal/util"
	"github.com/pulseboard/device-service/internal/util/logger"
)

var version = "development"

// SecurityHeadersMiddleware adds baseline security headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

func main() {
	configPath := "config/app-config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}

	logger.ReplaceGlobal(&logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	defer logger.Sync()

	if err := cfg.ResolveSecrets(); err != nil {
		logger.Fatalf("Secret resolution failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	// Request authenticator around the shared telemetry secret. An empty
	// secret never gets this far, but the constructor checks again.
	auth, err := identity.NewAuthenticator([]byte(cfg.Telemetry.SigningSecret))
	if err != nil {
		logger.Fatalf("Authenticator init failed: %v", err)
	}

	// Redis
	ropts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("Invalid redis_url: %v", err)
	}
	rcli, err := client.NewRedisClient(ctx, client.RedisConfig{
		Address:  ropts.Addr,
		Password: ropts.Password,
		DB:       ropts.DB,
	})
	if err != nil {
		logger.Fatalf("Redis init failed: %v", err)
	}
	defer rcli.Close()

	// DB
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := repository.CreateSchema(db); err != nil {
		logger.Fatalf("Schema creation failed: %v", err)
	}

	// Kafka audit shipper
	shipper, err := telemetry.NewKafkaAuditShipper(cfg.Telemetry.Audit)
	if err != nil {
		logger.Fatalf("Kafka audit shipper init failed: %v", err)
	}
	shipper.Start()

	// Repositories
	deviceRepo := repository.NewPostgresDeviceRepository(db)
	feedbackRepo := repository.NewPostgresFeedbackRepository(db)
	sessionRepo := repository.NewRedisSessionRepository(rcli)

	// Token manager
	tokens, err := util.NewTokenManager(util.TokenConfig{
		SigningKey:    []byte(cfg.Session.SigningKey),
		TokenDuration: cfg.Session.TokenDuration,
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
	})
	if err != nil {
		logger.Fatalf("Token manager init failed: %v", err)
	}

	// Services
	telemetrySvc := service.NewTelemetryService(auth, deviceRepo, shipper)
	sessionSvc := service.NewSessionService(auth, tokens, sessionRepo, telemetrySvc, shipper)
	feedbackSvc := service.NewFeedbackService(feedbackRepo)

	// Handlers
	telemetryHandler := handler.NewTelemetryHandler(telemetrySvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	feedbackHandler := handler.NewFeedbackHandler(feedbackSvc)
	healthHandler := handler.NewHealthHandler(cfg, version, db, rcli)

	// Router
	r := chi.NewRouter()
	r.Use(SecurityHeadersMiddleware)
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer, chimw.Timeout(10*time.Second))
	r.Use(chimw.Logger)

	r.Handle("/health", healthHandler)
	r.HandleFunc("/ready", healthHandler.ReadinessHandler)
	r.HandleFunc("/live", healthHandler.LivenessHandler)

	r.Route("/v1", func(rt chi.Router) {
		// Device endpoints authenticated by envelope signature
		rt.Group(func(dt chi.Router) {
			if cfg.RateLimit.Enabled {
				limiter := middleware.NewRateLimiter(middleware.LimiterConfig{
					RatePerInterval: cfg.RateLimit.RatePerInterval,
					Interval:        cfg.RateLimit.Interval,
					Burst:           cfg.RateLimit.Burst,
					Redis:           rcli,
					KeyPrefix:       cfg.RateLimit.KeyPrefix,
					BucketTTL:       cfg.RateLimit.BucketTTL,
				})
				dt.Use(limiter.Handler)
			}
			dt.Post("/telemetry/track", telemetryHandler.SubmitTrack)
			dt.Post("/telemetry/diag", telemetryHandler.SubmitDiag)
			dt.Post("/session", sessionHandler.Open)
		})

		// Session-authenticated endpoints
		rt.Group(func(st chi.Router) {
			st.Use(middleware.SessionAuth(sessionSvc))

			st.Get("/session/info", sessionHandler.Info)
			st.Delete("/session", sessionHandler.Revoke)
			st.Post("/feedback", feedbackHandler.Submit)
		})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("Device service %s listening on :%d", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}
	shipper.Stop(shutdownCtx)
}
