package services

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/khayashi/engawa/internal/models"
	"github.com/khayashi/engawa/internal/store"
)

// BreachConfig holds configuration for the password breach checker
type BreachConfig struct {
	// BaseURL is the range endpoint of the breach lookup provider,
	// e.g. "https://api.pwnedpasswords.com/range/".
	BaseURL string
	// Timeout bounds the provider round trip.
	Timeout time.Duration
	// CacheTTL is how long lookup results are cached per digest.
	CacheTTL time.Duration
	// UserAgent identifies us to the provider, which requires one.
	UserAgent string
	// WarningThreshold is the breach count above which Warning reports.
	WarningThreshold int
}

// DefaultBreachConfig returns the production breach check settings.
func DefaultBreachConfig() BreachConfig {
	return BreachConfig{
		BaseURL:          "https://api.pwnedpasswords.com/range/",
		Timeout:          3 * time.Second,
		CacheTTL:         time.Hour,
		UserAgent:        "engawa-security-check",
		WarningThreshold: 10,
	}
}

// BreachService checks candidate passwords against public breach corpora
// using the k-anonymity range protocol: only the first five characters of
// the SHA-1 digest leave the process, the suffix match happens locally.
//
// The provider is untrusted and unreliable. Every failure mode resolves to
// "not breached" with an error string in the result: signup must never block
// on provider availability.
type BreachService struct {
	config     BreachConfig
	httpClient *http.Client
	cache      store.Store
	logger     *slog.Logger
}

// NewBreachService creates a new BreachService. The http client is injected
// so tests can point it at a stub provider.
func NewBreachService(config BreachConfig, httpClient *http.Client, cache store.Store, logger *slog.Logger) *BreachService {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &BreachService{
		config:     config,
		httpClient: httpClient,
		cache:      cache,
		logger:     logger,
	}
}

// Check reports whether the password appears in known breaches and how many
// times. Results are cached by full digest so repeated checks of the same
// password within a session cost one provider call.
func (s *BreachService) Check(ctx context.Context, password string) models.BreachResult {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix := digest[:5]
	suffix := digest[5:]

	cacheKey := "breach:" + digest
	if cached, ok := s.cachedResult(ctx, cacheKey); ok {
		return cached
	}

	result, cacheable := s.lookup(ctx, prefix, suffix)
	if cacheable {
		s.cacheResult(ctx, cacheKey, result)
	}
	return result
}

// Warning returns a user-facing advisory when the password's breach count
// exceeds the configured threshold, and ok=false otherwise. Breach detection
// is advisory, not a hard block.
func (s *BreachService) Warning(ctx context.Context, password string) (string, bool) {
	result := s.Check(ctx, password)
	if result.Breached && result.Count >= s.config.WarningThreshold {
		return fmt.Sprintf(
			"This password has been found in %d data breaches. Please choose a different password.",
			result.Count,
		), true
	}
	return "", false
}

// lookup performs the provider round trip. The second return value reports
// whether the result is worth caching; transient failures are not.
func (s *BreachService) lookup(ctx context.Context, prefix, suffix string) (models.BreachResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+prefix, nil)
	if err != nil {
		s.logger.Error("failed to build breach lookup request", slog.Any("error", err))
		return models.BreachResult{Error: models.BreachErrFailed}, false
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("breach lookup timed out")
			return models.BreachResult{Error: models.BreachErrTimeout}, false
		}
		s.logger.Warn("breach lookup failed", slog.Any("error", err))
		return models.BreachResult{Error: models.BreachErrFailed}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("breach provider returned non-OK status", slog.Int("status", resp.StatusCode))
		return models.BreachResult{Error: models.BreachErrUnavailable}, false
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		hashSuffix, countStr, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.TrimSpace(hashSuffix) != suffix {
			continue
		}

		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil {
			count = 0
		}
		return models.BreachResult{Breached: true, Count: count}, true
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("failed to read breach provider response", slog.Any("error", err))
		return models.BreachResult{Error: models.BreachErrFailed}, false
	}

	// Suffix absent from the prefix bucket: not breached.
	return models.BreachResult{}, true
}

func (s *BreachService) cachedResult(ctx context.Context, key string) (models.BreachResult, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return models.BreachResult{}, false
	}

	var result models.BreachResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.BreachResult{}, false
	}
	return result, true
}

func (s *BreachService) cacheResult(ctx context.Context, key string, result models.BreachResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.config.CacheTTL); err != nil {
		s.logger.Warn("failed to cache breach result", slog.Any("error", err))
	}
}
