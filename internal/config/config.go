package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/khayashi/engawa/internal/models"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Security  SecurityConfig
	Breach    BreachConfig
	TeaTime   TeaTimeConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
}

// RedisConfig enables the shared external store when Addr is set; otherwise
// the portal runs on the in-process store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	// ServiceTokenSecret signs the HS256 tokens that the cron scheduler and
	// identity glue present on internal endpoints.
	ServiceTokenSecret string
	ServiceTokenExpiry time.Duration
	CleanupInterval    time.Duration
}

type SecurityConfig struct {
	LockoutThreshold    int
	LockoutDuration     time.Duration
	LockoutResetAfter   time.Duration
	RateLimitFailClosed bool
}

type BreachConfig struct {
	BaseURL          string
	Timeout          time.Duration
	CacheTTL         time.Duration
	UserAgent        string
	WarningThreshold int
}

type TeaTimeConfig struct {
	HistoryWindow   time.Duration
	RetentionWindow time.Duration
	NotifyEnabled   bool
	AWSRegion       string
	FromAddress     string
	PortalURL       string
}

// RateLimitConfig carries the per-endpoint-class policies. Defaults match
// the documented presets; limits and windows can be tuned per deployment.
type RateLimitConfig struct {
	Auth          models.RateLimitPolicy
	API           models.RateLimitPolicy
	Upload        models.RateLimitPolicy
	PasswordReset models.RateLimitPolicy
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	secret := getEnv("SERVICE_TOKEN_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("SERVICE_TOKEN_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "engawa"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConns:        int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:        int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			ServiceTokenSecret: secret,
			ServiceTokenExpiry: getEnvAsDuration("SERVICE_TOKEN_EXPIRY", 24*time.Hour),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Security: SecurityConfig{
			LockoutThreshold:    getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:     getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			LockoutResetAfter:   getEnvAsDuration("LOCKOUT_RESET_AFTER", time.Hour),
			RateLimitFailClosed: getEnvAsBool("RATE_LIMIT_FAIL_CLOSED", false),
		},
		Breach: BreachConfig{
			BaseURL:          getEnv("BREACH_API_URL", "https://api.pwnedpasswords.com/range/"),
			Timeout:          getEnvAsDuration("BREACH_TIMEOUT", 3*time.Second),
			CacheTTL:         getEnvAsDuration("BREACH_CACHE_TTL", time.Hour),
			UserAgent:        getEnv("BREACH_USER_AGENT", "engawa-security-check"),
			WarningThreshold: getEnvAsInt("BREACH_WARNING_THRESHOLD", 10),
		},
		TeaTime: TeaTimeConfig{
			HistoryWindow:   getEnvAsDuration("TEATIME_HISTORY_WINDOW", 30*24*time.Hour),
			RetentionWindow: getEnvAsDuration("TEATIME_RETENTION_WINDOW", 180*24*time.Hour),
			NotifyEnabled:   getEnvAsBool("TEATIME_NOTIFY_ENABLED", false),
			AWSRegion:       getEnv("AWS_REGION", "eu-central-1"),
			FromAddress:     getEnv("TEATIME_FROM_ADDRESS", ""),
			PortalURL:       getEnv("PORTAL_URL", ""),
		},
		RateLimit: RateLimitConfig{
			Auth:          policyFromEnv("RATE_LIMIT_AUTH", models.AuthRateLimit),
			API:           policyFromEnv("RATE_LIMIT_API", models.APIRateLimit),
			Upload:        policyFromEnv("RATE_LIMIT_UPLOAD", models.UploadRateLimit),
			PasswordReset: policyFromEnv("RATE_LIMIT_PWD_RESET", models.PasswordResetRateLimit),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateServiceTokenSecret(secret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects malformed security settings once at startup. A bad limit
// or window is a deployment error, not something to handle per request.
func (c *Config) validate() error {
	for _, policy := range []models.RateLimitPolicy{
		c.RateLimit.Auth,
		c.RateLimit.API,
		c.RateLimit.Upload,
		c.RateLimit.PasswordReset,
	} {
		if err := policy.Validate(); err != nil {
			return err
		}
	}

	if c.Security.LockoutThreshold <= 0 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be positive, got %d", c.Security.LockoutThreshold)
	}
	if c.Security.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive, got %s", c.Security.LockoutDuration)
	}
	if c.Breach.Timeout <= 0 {
		return fmt.Errorf("BREACH_TIMEOUT must be positive, got %s", c.Breach.Timeout)
	}
	if c.TeaTime.HistoryWindow <= 0 {
		return fmt.Errorf("TEATIME_HISTORY_WINDOW must be positive, got %s", c.TeaTime.HistoryWindow)
	}
	if c.TeaTime.NotifyEnabled && c.TeaTime.FromAddress == "" {
		return fmt.Errorf("TEATIME_FROM_ADDRESS is required when notifications are enabled")
	}

	return nil
}

// validateServiceTokenSecret enforces minimum strength for the signing secret
func validateServiceTokenSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("SERVICE_TOKEN_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SERVICE_TOKEN_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func policyFromEnv(prefix string, fallback models.RateLimitPolicy) models.RateLimitPolicy {
	return models.RateLimitPolicy{
		Limit:  getEnvAsInt(prefix+"_MAX", fallback.Limit),
		Window: getEnvAsDuration(prefix+"_WINDOW", fallback.Window),
		Prefix: fallback.Prefix,
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}
