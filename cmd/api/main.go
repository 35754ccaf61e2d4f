package main

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/khayashi/engawa/internal/auth"
	"github.com/khayashi/engawa/internal/background"
	"github.com/khayashi/engawa/internal/clock"
	"github.com/khayashi/engawa/internal/config"
	"github.com/khayashi/engawa/internal/database"
	"github.com/khayashi/engawa/internal/handlers"
	middlewareCustom "github.com/khayashi/engawa/internal/middleware"
	"github.com/khayashi/engawa/internal/repositories"
	"github.com/khayashi/engawa/internal/routes"
	"github.com/khayashi/engawa/internal/services"
	"github.com/khayashi/engawa/internal/store"
	pkglogger "github.com/khayashi/engawa/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	clk := clock.System()

	// Security store: shared external store when configured, otherwise the
	// in-process store. Counters are per instance in the latter case.
	var securityStore store.Store
	var memoryStore *store.Memory
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		securityStore = store.NewRedis(redisClient, "engawa")
		logger.Info("using external security store", slog.String("addr", cfg.Redis.Addr))
	} else {
		memoryStore = store.NewMemory(clk)
		securityStore = memoryStore
		logger.Info("using in-process security store")
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Security services
	rateLimitService := services.NewRateLimitService(securityStore, clk, services.RateLimitConfig{
		FailClosed: cfg.Security.RateLimitFailClosed,
	}, logger)

	lockoutService := services.NewLockoutService(securityStore, clk, services.LockoutConfig{
		Threshold:       cfg.Security.LockoutThreshold,
		LockoutDuration: cfg.Security.LockoutDuration,
		ResetAfter:      cfg.Security.LockoutResetAfter,
	}, logger, auditLogger)

	breachService := services.NewBreachService(services.BreachConfig{
		BaseURL:          cfg.Breach.BaseURL,
		Timeout:          cfg.Breach.Timeout,
		CacheTTL:         cfg.Breach.CacheTTL,
		UserAgent:        cfg.Breach.UserAgent,
		WarningThreshold: cfg.Breach.WarningThreshold,
	}, &http.Client{Timeout: cfg.Breach.Timeout}, securityStore, logger)

	// Tea time pairing
	matchRepo := repositories.NewMatchRepository(db)

	var notifier services.MatchNotifier
	if cfg.TeaTime.NotifyEnabled {
		notifier, err = services.NewSESMatchNotifier(
			cfg.TeaTime.AWSRegion,
			cfg.TeaTime.FromAddress,
			cfg.TeaTime.PortalURL,
			matchRepo,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize match notifier", slog.Any("error", err))
			os.Exit(1)
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	matchingService := services.NewMatchingService(matchRepo, notifier, rng, clk, services.MatchingConfig{
		HistoryWindow: cfg.TeaTime.HistoryWindow,
		NotifyTimeout: 10 * time.Second,
	}, logger)

	// Service token manager for the cron scheduler and identity glue
	tokenManager := auth.NewServiceTokenManager(cfg.Auth.ServiceTokenSecret, cfg.Auth.ServiceTokenExpiry)

	// Cleanup manager: purges the in-process store and prunes old matches
	cleanupManager := background.NewCleanupManager(
		memoryStorePurger(memoryStore),
		matchRepo,
		clk,
		logger,
		cfg.Auth.CleanupInterval,
		cfg.TeaTime.RetentionWindow,
	)

	// Initialize handlers
	securityHandler := handlers.NewSecurityHandler(lockoutService, breachService, auditLogger)
	teaTimeHandler := handlers.NewTeaTimeHandler(matchingService, auditLogger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.EdgeRateLimit(300))

	healthHandler := newHealthHandler(db, redisClient)
	routes.RegisterRoutes(router, cfg, rateLimitService, tokenManager, securityHandler, teaTimeHandler, healthHandler)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// memoryStorePurger avoids a typed-nil interface when running on the
// external store.
func memoryStorePurger(m *store.Memory) background.StorePurger {
	if m == nil {
		return nil
	}
	return m
}

func newHealthHandler(db *database.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy","database":"up","store":"down"}`))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	}
}
