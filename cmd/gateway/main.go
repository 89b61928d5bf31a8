package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kocoro-lab/snippets/cmd/gateway/internal/handlers"
	"github.com/Kocoro-lab/snippets/cmd/gateway/internal/middleware"
	"github.com/Kocoro-lab/snippets/internal/auth"
	"github.com/Kocoro-lab/snippets/internal/config"
	"github.com/Kocoro-lab/snippets/internal/db"
	"github.com/Kocoro-lab/snippets/internal/policy"
	"github.com/Kocoro-lab/snippets/internal/snippets"
	"github.com/Kocoro-lab/snippets/internal/tracing"
)

func main() {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logCfg := zap.NewProductionConfig()
	logCfg.Level = level
	logger, err := logCfg.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	mgr, err := config.NewManager(config.Path(), logger)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	cfg := mgr.Current()
	setLevel(level, cfg.Logging.Level, logger)

	if cfg.UsesDefaultSecret() {
		logger.Warn("auth.jwt_secret is the development default; set SNIPPETS_AUTH_JWT_SECRET in production")
	}

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing unavailable", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	dbClient, err := db.NewClient(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbClient.Close()

	// Redis is optional; without it rate limits are kept in memory and
	// idempotency keys and token revocation are unavailable
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = connectRedis(ctx, cfg.Redis.URL, logger)
		if rdb != nil {
			defer rdb.Close()
		}
	}

	engine, err := policy.NewOPAEngine(&cfg.Policy, logger)
	if err != nil {
		logger.Fatal("Failed to initialize policy engine", zap.Error(err))
	}
	mgr.RegisterPolicyHandler(engine.LoadPolicies)

	var revocations auth.RevocationStore
	if rdb != nil {
		revocations = auth.NewRedisRevocationStore(rdb)
	}
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	authService := auth.NewService(dbClient.DB(), jwtManager, dbClient, revocations, logger)

	snippetService := snippets.NewService(dbClient.DB(), engine, authService, dbClient, snippets.Options{
		AutoSuggest: cfg.Analysis.AutoSuggest,
		BaseURL:     cfg.Server.AppURL,
	}, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, logger)
	snippetHandler := handlers.NewSnippetHandler(snippetService, authService, logger)
	analyzeHandler := handlers.NewAnalyzeHandler(snippetService, logger)
	healthHandler := handlers.NewHealthHandler(dbClient, rdb, logger)
	openapiHandler := handlers.NewOpenAPIHandler(cfg.Server.AppURL)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(authService, logger).Middleware
	optionalAuth := middleware.NewAuthMiddleware(authService, logger).Optional
	tracingMiddleware := middleware.NewTracingMiddleware(logger).Middleware
	validationMiddleware := middleware.NewValidationMiddleware(logger).Middleware
	idempotencyMiddleware := middleware.NewIdempotencyMiddleware(rdb, logger).Middleware
	apiLimiter := middleware.NewRateLimiter("api", rdb, cfg.RateLimit.RequestsPerMinute, logger)
	authLimiter := middleware.NewRateLimiter("auth", rdb, cfg.RateLimit.AuthPerMinute, logger)
	rateLimiter := apiLimiter.Middleware
	cors := middleware.NewCORS(cfg.Server.CORSOrigin)

	mgr.OnChange(func(old, updated *config.Config) {
		setLevel(level, updated.Logging.Level, logger)
		apiLimiter.SetLimit(updated.RateLimit.RequestsPerMinute)
		authLimiter.SetLimit(updated.RateLimit.AuthPerMinute)
		snippetService.SetAutoSuggest(updated.Analysis.AutoSuggest)
		cors.SetOrigin(updated.Server.CORSOrigin)
		if old.Server.Port != updated.Server.Port || old.Database.DSN != updated.Database.DSN {
			logger.Warn("Server and database settings take effect after restart")
		}
	})
	if err := mgr.Start(ctx); err != nil {
		logger.Warn("Config hot reload disabled", zap.Error(err))
	}
	defer mgr.Stop()

	// anonymous routes share these wrappers
	public := func(h http.HandlerFunc) http.Handler {
		return tracingMiddleware(validationMiddleware(rateLimiter(h)))
	}
	optional := func(h http.HandlerFunc) http.Handler {
		return tracingMiddleware(optionalAuth(validationMiddleware(rateLimiter(h))))
	}
	required := func(h http.HandlerFunc) http.Handler {
		return tracingMiddleware(authMiddleware(validationMiddleware(rateLimiter(h))))
	}

	mux := http.NewServeMux()

	// Health checks stay outside rate limiting
	mux.Handle("GET /health", tracingMiddleware(http.HandlerFunc(healthHandler.Health)))
	mux.Handle("GET /readiness", tracingMiddleware(http.HandlerFunc(healthHandler.Readiness)))
	mux.HandleFunc("GET /openapi.json", openapiHandler.ServeSpec)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	// Auth
	mux.Handle("POST /api/v1/auth/register",
		tracingMiddleware(validationMiddleware(authLimiter.Middleware(http.HandlerFunc(authHandler.Register)))))
	mux.Handle("POST /api/v1/auth/login",
		tracingMiddleware(validationMiddleware(authLimiter.Middleware(http.HandlerFunc(authHandler.Login)))))
	mux.Handle("POST /api/v1/auth/logout", required(authHandler.Logout))
	mux.Handle("GET /api/v1/auth/me", required(authHandler.Me))
	mux.Handle("PATCH /api/v1/auth/me", required(authHandler.UpdateMe))
	mux.Handle("POST /api/v1/auth/password", required(authHandler.ChangePassword))

	// Snippets
	mux.Handle("GET /api/v1/snippets", optional(snippetHandler.List))
	mux.Handle("POST /api/v1/snippets",
		tracingMiddleware(
			authMiddleware(
				validationMiddleware(
					rateLimiter(
						idempotencyMiddleware(
							http.HandlerFunc(snippetHandler.Create),
						),
					),
				),
			),
		),
	)
	mux.Handle("GET /api/v1/snippets/{id}", optional(snippetHandler.Get))
	mux.Handle("PATCH /api/v1/snippets/{id}", required(snippetHandler.Update))
	mux.Handle("DELETE /api/v1/snippets/{id}", required(snippetHandler.Delete))
	mux.Handle("GET /api/v1/dashboard", required(snippetHandler.Dashboard))
	mux.Handle("GET /api/v1/users/{username}", public(snippetHandler.Profile))

	// Catalog
	mux.Handle("GET /api/v1/languages", public(snippetHandler.Languages))
	mux.Handle("GET /api/v1/tags", public(snippetHandler.Tags))

	// Analysis
	mux.Handle("POST /api/v1/analyze", optional(analyzeHandler.Analyze))
	mux.Handle("GET /api/v1/complexity/{label}", public(analyzeHandler.Describe))

	port := cfg.Server.Port
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      cors.Middleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Gateway starting", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start gateway", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Gateway shutting down...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Gateway forced to shutdown", zap.Error(err))
	}

	logger.Info("Gateway stopped")
}

// connectRedis returns nil when the server cannot be reached so the gateway
// still starts with in-memory rate limiting
func connectRedis(ctx context.Context, url string, logger *zap.Logger) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("Invalid redis.url, continuing without Redis", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unreachable, continuing without Redis", zap.String("addr", opts.Addr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	logger.Info("Redis connected", zap.String("addr", opts.Addr))
	return client
}

func setLevel(level zap.AtomicLevel, name string, logger *zap.Logger) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		logger.Warn("Unknown logging.level, keeping current", zap.String("level", name))
		return
	}
	if level.Level() != l {
		level.SetLevel(l)
		logger.Info("Log level set", zap.String("level", l.String()))
	}
}
