package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditLogger emits security audit events as structured log records.
// Emails are always masked before they reach the log stream.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LockoutEvent describes an applied account lockout.
type LockoutEvent struct {
	Email          string
	IPAddress      string
	FailedAttempts int
	LockoutMinutes int
}

// LogLockout records that an account lockout was applied.
func (al *AuditLogger) LogLockout(event LockoutEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", "account_lockout"),
		slog.String("email", SanitizedEmail(event.Email)),
		slog.Int("failed_attempts", event.FailedAttempts),
		slog.Int("lockout_minutes", event.LockoutMinutes),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}

// LogAuthAttempt records the outcome of a login attempt reported by the
// identity glue.
func (al *AuditLogger) LogAuthAttempt(email, ip string, success bool) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", "login_attempt"),
		slog.String("email", SanitizedEmail(email)),
		slog.Bool("success", success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if ip != "" {
		attrs = append(attrs, slog.String("ip_address", ip))
	}

	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogMatchingRun records the outcome of a tea time pairing run.
func (al *AuditLogger) LogMatchingRun(matchesCreated int) {
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit",
		slog.String("audit_type", "teatime"),
		slog.String("event_type", "matching_run"),
		slog.Int("matches_created", matchesCreated),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}
