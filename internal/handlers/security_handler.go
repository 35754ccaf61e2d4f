package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/khayashi/engawa/internal/models"
	pkghttp "github.com/khayashi/engawa/pkg/http"
	pkglogger "github.com/khayashi/engawa/pkg/logger"
)

// LockoutGuard defines the interface for account lockout decisions
type LockoutGuard interface {
	RecordFailedLogin(ctx context.Context, email, ip string) models.LockoutStatus
	RecordSuccessfulLogin(ctx context.Context, email, ip string)
	CheckAny(ctx context.Context, email, ip string) models.LockoutStatus
}

// BreachChecker defines the interface for password breach lookups
type BreachChecker interface {
	Check(ctx context.Context, password string) models.BreachResult
	Warning(ctx context.Context, password string) (string, bool)
}

// SecurityHandler exposes the lockout guard and breach checker to the
// portal's identity glue. The portal performs the actual credential check
// against the identity provider and reports outcomes here.
type SecurityHandler struct {
	lockout LockoutGuard
	breach  BreachChecker
	audit   *pkglogger.AuditLogger
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(lockout LockoutGuard, breach BreachChecker, audit *pkglogger.AuditLogger) *SecurityHandler {
	return &SecurityHandler{
		lockout: lockout,
		breach:  breach,
		audit:   audit,
	}
}

// LoginAttemptRequest reports one login outcome for an (email, ip) pair.
// IP is optional: without it only the email-wide bucket is touched.
type LoginAttemptRequest struct {
	Email string `json:"email" validate:"required,email"`
	IP    string `json:"ip" validate:"omitempty,ip"`
}

// PasswordCheckRequest carries a candidate password for breach checking.
type PasswordCheckRequest struct {
	Password string `json:"password" validate:"required,min=1,max=256"`
}

// PasswordCheckResponse is the breach check result plus the optional
// user-facing advisory.
type PasswordCheckResponse struct {
	Breached bool   `json:"breached"`
	Count    int    `json:"count,omitempty"`
	Error    string `json:"error,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// RecordFailedLogin handles POST /internal/auth/attempts/failed
func (h *SecurityHandler) RecordFailedLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAttempt(w, r)
	if !ok {
		return
	}

	h.audit.LogAuthAttempt(req.Email, req.IP, false)

	// Both buckets burn independently; see LockoutService for why.
	status := h.lockout.RecordFailedLogin(r.Context(), req.Email, "")
	if req.IP != "" {
		scoped := h.lockout.RecordFailedLogin(r.Context(), req.Email, req.IP)
		if scoped.IsLocked {
			status = scoped
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// RecordSuccessfulLogin handles POST /internal/auth/attempts/succeeded
func (h *SecurityHandler) RecordSuccessfulLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAttempt(w, r)
	if !ok {
		return
	}

	h.audit.LogAuthAttempt(req.Email, req.IP, true)

	h.lockout.RecordSuccessfulLogin(r.Context(), req.Email, "")
	if req.IP != "" {
		h.lockout.RecordSuccessfulLogin(r.Context(), req.Email, req.IP)
	}

	w.WriteHeader(http.StatusNoContent)
}

// CheckLockout handles GET /internal/auth/lockout
func (h *SecurityHandler) CheckLockout(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		pkghttp.WriteBadRequest(w, "email query parameter is required")
		return
	}
	ip := r.URL.Query().Get("ip")

	status := h.lockout.CheckAny(r.Context(), email, ip)
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// CheckPassword handles POST /internal/security/password-check
func (h *SecurityHandler) CheckPassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result := h.breach.Check(r.Context(), req.Password)
	resp := PasswordCheckResponse{
		Breached: result.Breached,
		Count:    result.Count,
		Error:    result.Error,
	}
	if warning, ok := h.breach.Warning(r.Context(), req.Password); ok {
		resp.Warning = warning
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

func decodeAttempt(w http.ResponseWriter, r *http.Request) (LoginAttemptRequest, bool) {
	var req LoginAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return req, false
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return req, false
	}
	return req, true
}
