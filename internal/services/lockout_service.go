package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/khayashi/engawa/internal/clock"
	"github.com/khayashi/engawa/internal/models"
	"github.com/khayashi/engawa/internal/store"
	pkglogger "github.com/khayashi/engawa/pkg/logger"
)

// LockoutConfig holds configuration for the account lockout guard
type LockoutConfig struct {
	// Threshold is the number of failed logins after which the key locks.
	Threshold int
	// LockoutDuration is how long a locked key stays locked.
	LockoutDuration time.Duration
	// ResetAfter clears a key's failure history after this much inactivity.
	ResetAfter time.Duration
}

// DefaultLockoutConfig returns the production lockout policy: 5 failures
// lock for 15 minutes, history resets after an hour of quiet.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Threshold:       5,
		LockoutDuration: 15 * time.Minute,
		ResetAfter:      time.Hour,
	}
}

// LockoutService slows credential stuffing by locking an (email, ip) key out
// after repeated failed logins. The email-only and email+ip keys are
// independent buckets: an attacker rotating IPs still burns the email-only
// budget, while residents behind a shared IP are not penalized by noise on
// the same email from elsewhere.
type LockoutService struct {
	store  store.Store
	clk    clock.Clock
	config LockoutConfig
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(st store.Store, clk clock.Clock, config LockoutConfig, logger *slog.Logger, audit *pkglogger.AuditLogger) *LockoutService {
	return &LockoutService{
		store:  st,
		clk:    clk,
		config: config,
		logger: logger,
		audit:  audit,
	}
}

// RecordFailedLogin increments the failure counter for the key and applies a
// lock once the threshold is reached. Store failures degrade to "not locked"
// and are logged; the guard never blocks a caller on infrastructure trouble.
func (s *LockoutService) RecordFailedLogin(ctx context.Context, email, ip string) models.LockoutStatus {
	key := lockoutKey(email, ip)
	now := s.clk.Now()

	record, err := s.loadRecord(ctx, key)
	if err != nil {
		s.logger.Error("lockout store unavailable", slog.Any("error", err))
		return models.LockoutStatus{}
	}

	if record == nil || now.Sub(record.LastAttemptAt) > s.config.ResetAfter {
		record = &models.LockoutRecord{FirstFailureAt: now}
	}

	record.FailedAttempts++
	record.LastAttemptAt = now
	record.LockedUntil = nil

	if record.FailedAttempts >= s.config.Threshold {
		lockedUntil := now.Add(s.config.LockoutDuration)
		record.LockedUntil = &lockedUntil

		s.audit.LogLockout(pkglogger.LockoutEvent{
			Email:          email,
			IPAddress:      ip,
			FailedAttempts: record.FailedAttempts,
			LockoutMinutes: int(s.config.LockoutDuration / time.Minute),
		})
	}

	if err := s.saveRecord(ctx, key, record); err != nil {
		s.logger.Error("failed to persist lockout record", slog.Any("error", err))
	}

	return s.statusOf(record, now)
}

// Check is a read-only probe of the key's lockout state. An elapsed lock is
// reported as cleared without requiring an explicit cleanup pass.
func (s *LockoutService) Check(ctx context.Context, email, ip string) models.LockoutStatus {
	key := lockoutKey(email, ip)
	now := s.clk.Now()

	record, err := s.loadRecord(ctx, key)
	if err != nil {
		s.logger.Error("lockout store unavailable", slog.Any("error", err))
		return models.LockoutStatus{}
	}
	if record == nil {
		return models.LockoutStatus{}
	}

	// Stale history counts as cleared.
	if now.Sub(record.LastAttemptAt) > s.config.ResetAfter {
		return models.LockoutStatus{}
	}

	return s.statusOf(record, now)
}

// CheckAny consults both the email-only and the email+ip buckets and reports
// locked if either is. The two buckets can disagree for the same attacker;
// callers that need one authoritative answer use this view.
func (s *LockoutService) CheckAny(ctx context.Context, email, ip string) models.LockoutStatus {
	byEmail := s.Check(ctx, email, "")
	if ip == "" {
		return byEmail
	}

	byPair := s.Check(ctx, email, ip)
	if byPair.IsLocked {
		return byPair
	}
	if byEmail.IsLocked {
		return byEmail
	}
	if byPair.FailedAttempts > byEmail.FailedAttempts {
		return byPair
	}
	return byEmail
}

// RecordSuccessfulLogin resets the failure history for the key. Callers
// invoke this after a successful credential check.
func (s *LockoutService) RecordSuccessfulLogin(ctx context.Context, email, ip string) {
	if err := s.store.Delete(ctx, lockoutKey(email, ip)); err != nil {
		s.logger.Error("failed to clear lockout record", slog.Any("error", err))
	}
}

func (s *LockoutService) statusOf(record *models.LockoutRecord, now time.Time) models.LockoutStatus {
	if record.LockedUntil != nil && record.LockedUntil.After(now) {
		remaining := record.LockedUntil.Sub(now)
		return models.LockoutStatus{
			IsLocked:         true,
			FailedAttempts:   record.FailedAttempts,
			RemainingMinutes: int((remaining + time.Minute - 1) / time.Minute),
		}
	}

	// An elapsed lock lazily clears the counters.
	if record.LockedUntil != nil {
		return models.LockoutStatus{}
	}

	return models.LockoutStatus{FailedAttempts: record.FailedAttempts}
}

func (s *LockoutService) loadRecord(ctx context.Context, key string) (*models.LockoutRecord, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var record models.LockoutRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		// A corrupt record is unrecoverable; start over.
		s.logger.Warn("discarding corrupt lockout record", slog.Any("error", err))
		return nil, nil
	}
	return &record, nil
}

func (s *LockoutService) saveRecord(ctx context.Context, key string, record *models.LockoutRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, key, raw, s.config.ResetAfter)
}

// lockoutKey composes the bucket key. Email alone and email+ip are distinct
// buckets on purpose; see the LockoutService doc comment.
func lockoutKey(email, ip string) string {
	sanitized := strings.ToLower(strings.TrimSpace(email))
	if ip == "" {
		return "lockout:" + sanitized
	}
	return "lockout:" + sanitized + ":" + ip
}
