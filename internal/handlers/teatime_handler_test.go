package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	pkglogger "github.com/khayashi/engawa/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMatchRunner struct {
	created int
	calls   int
}

func (m *mockMatchRunner) Run(ctx context.Context) int {
	m.calls++
	return m.created
}

func TestTeaTimeHandler_RunMatching(t *testing.T) {
	runner := &mockMatchRunner{created: 3}
	audit := pkglogger.NewAuditLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	handler := NewTeaTimeHandler(runner, audit)

	req := httptest.NewRequest("POST", "/cron/tea-time/match", nil)
	rec := httptest.NewRecorder()

	handler.RunMatching(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.calls)

	var resp MatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.MatchesCreated)
}

func TestTeaTimeHandler_RunMatching_NoPairs(t *testing.T) {
	runner := &mockMatchRunner{created: 0}
	audit := pkglogger.NewAuditLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	handler := NewTeaTimeHandler(runner, audit)

	req := httptest.NewRequest("POST", "/cron/tea-time/match", nil)
	rec := httptest.NewRecorder()

	handler.RunMatching(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp MatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 0, resp.MatchesCreated)
}
