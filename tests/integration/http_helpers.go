package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/khayashi/engawa/internal/auth"
	"github.com/khayashi/engawa/internal/clock"
	"github.com/khayashi/engawa/internal/config"
	"github.com/khayashi/engawa/internal/database"
	"github.com/khayashi/engawa/internal/handlers"
	middlewareCustom "github.com/khayashi/engawa/internal/middleware"
	"github.com/khayashi/engawa/internal/models"
	"github.com/khayashi/engawa/internal/repositories"
	"github.com/khayashi/engawa/internal/routes"
	"github.com/khayashi/engawa/internal/services"
	"github.com/khayashi/engawa/internal/store"
	pkglogger "github.com/khayashi/engawa/pkg/logger"
)

const testServiceTokenSecret = "test-secret-32-characters-long-for-testing"

func seededRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Config *config.Config
	Clock  *clock.Fake

	tokenManager *auth.ServiceTokenManager
	logger       *slog.Logger
}

// NewTestServer initializes a complete HTTP server against a real database,
// with the in-process security store on a fake clock.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			TrustedProxies: []string{},
		},
		Auth: config.AuthConfig{
			ServiceTokenSecret: testServiceTokenSecret,
			ServiceTokenExpiry: time.Hour,
			CleanupInterval:    time.Hour,
		},
		Security: config.SecurityConfig{
			LockoutThreshold:  5,
			LockoutDuration:   15 * time.Minute,
			LockoutResetAfter: time.Hour,
		},
		TeaTime: config.TeaTimeConfig{
			HistoryWindow:   30 * 24 * time.Hour,
			RetentionWindow: 90 * 24 * time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			Auth:          models.AuthRateLimit,
			API:           models.APIRateLimit,
			Upload:        models.UploadRateLimit,
			PasswordReset: models.PasswordResetRateLimit,
		},
	}

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	securityStore := store.NewMemory(clk)

	auditLogger := pkglogger.NewAuditLogger(logger)

	rateLimitService := services.NewRateLimitService(securityStore, clk, services.RateLimitConfig{}, logger)
	lockoutService := services.NewLockoutService(securityStore, clk, services.LockoutConfig{
		Threshold:       cfg.Security.LockoutThreshold,
		LockoutDuration: cfg.Security.LockoutDuration,
		ResetAfter:      cfg.Security.LockoutResetAfter,
	}, logger, auditLogger)
	breachService := services.NewBreachService(services.DefaultBreachConfig(), nil, securityStore, logger)

	matchRepo := repositories.NewMatchRepository(db)
	matchingService := services.NewMatchingService(matchRepo, nil, seededRand(), clk, services.MatchingConfig{
		HistoryWindow: cfg.TeaTime.HistoryWindow,
		NotifyTimeout: time.Second,
	}, logger)

	tokenManager := auth.NewServiceTokenManager(cfg.Auth.ServiceTokenSecret, cfg.Auth.ServiceTokenExpiry)

	securityHandler := handlers.NewSecurityHandler(lockoutService, breachService, auditLogger)
	teaTimeHandler := handlers.NewTeaTimeHandler(matchingService, auditLogger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	healthHandler := func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	routes.RegisterRoutes(r, cfg, rateLimitService, tokenManager, securityHandler, teaTimeHandler, healthHandler)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		Config:       cfg,
		Clock:        clk,
		tokenManager: tokenManager,
		logger:       logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// ServiceToken mints a bearer token with the given scope
func (ts *TestServer) ServiceToken(scope string) (string, error) {
	return ts.tokenManager.Generate("integration-test", scope)
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithScope makes a request carrying a service token of the given scope
func (ts *TestServer) RequestWithScope(method, path, scope string, body interface{}) (*http.Response, error) {
	token, err := ts.ServiceToken(scope)
	if err != nil {
		return nil, err
	}
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
