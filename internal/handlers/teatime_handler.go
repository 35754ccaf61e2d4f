package handlers

import (
	"context"
	"net/http"

	pkghttp "github.com/khayashi/engawa/pkg/http"
	pkglogger "github.com/khayashi/engawa/pkg/logger"
)

// MatchRunner defines the interface for triggering a pairing run
type MatchRunner interface {
	Run(ctx context.Context) int
}

// TeaTimeHandler exposes the pairing engine to the cron scheduler.
type TeaTimeHandler struct {
	matcher MatchRunner
	audit   *pkglogger.AuditLogger
}

// NewTeaTimeHandler creates a new TeaTimeHandler
func NewTeaTimeHandler(matcher MatchRunner, audit *pkglogger.AuditLogger) *TeaTimeHandler {
	return &TeaTimeHandler{matcher: matcher, audit: audit}
}

// MatchResponse reports how many pairs one run created.
type MatchResponse struct {
	MatchesCreated int `json:"matches_created"`
}

// RunMatching handles POST /cron/tea-time/match. A run that creates zero
// pairs is still a successful run; the next cron tick retries naturally.
func (h *TeaTimeHandler) RunMatching(w http.ResponseWriter, r *http.Request) {
	created := h.matcher.Run(r.Context())
	h.audit.LogMatchingRun(created)

	pkghttp.WriteJSON(w, http.StatusOK, MatchResponse{MatchesCreated: created})
}
