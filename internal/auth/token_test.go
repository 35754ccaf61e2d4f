package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/khayashi/engawa/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "a-sufficiently-long-signing-secret"

func TestServiceTokenRoundTrip(t *testing.T) {
	tm := auth.NewServiceTokenManager(testSecret, time.Hour)

	token, err := tm.Generate("scheduler", auth.ScopeCron)
	require.NoError(t, err)

	claims, err := tm.Validate(token, auth.ScopeCron)
	require.NoError(t, err)
	assert.Equal(t, "scheduler", claims.Service)
	assert.Equal(t, auth.ScopeCron, claims.Scope)
}

func TestServiceTokenScopeMismatch(t *testing.T) {
	tm := auth.NewServiceTokenManager(testSecret, time.Hour)

	token, err := tm.Generate("scheduler", auth.ScopeCron)
	require.NoError(t, err)

	_, err = tm.Validate(token, auth.ScopeInternal)
	assert.Error(t, err)
}

func TestServiceTokenWrongSecret(t *testing.T) {
	tm := auth.NewServiceTokenManager(testSecret, time.Hour)
	other := auth.NewServiceTokenManager("another-sufficiently-long-secret", time.Hour)

	token, err := tm.Generate("scheduler", auth.ScopeCron)
	require.NoError(t, err)

	_, err = other.Validate(token, auth.ScopeCron)
	assert.Error(t, err)
}

func TestServiceTokenExpired(t *testing.T) {
	tm := auth.NewServiceTokenManager(testSecret, -time.Minute)

	token, err := tm.Generate("scheduler", auth.ScopeCron)
	require.NoError(t, err)

	_, err = tm.Validate(token, auth.ScopeCron)
	assert.Error(t, err)
}

func TestRequireServiceToken(t *testing.T) {
	tm := auth.NewServiceTokenManager(testSecret, time.Hour)
	handler := auth.RequireServiceToken(tm, auth.ScopeCron)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/cron/tea-time/match", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := tm.Generate("scheduler", auth.ScopeCron)
		require.NoError(t, err)

		req := httptest.NewRequest("POST", "/cron/tea-time/match", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong scope", func(t *testing.T) {
		token, err := tm.Generate("portal", auth.ScopeInternal)
		require.NoError(t, err)

		req := httptest.NewRequest("POST", "/cron/tea-time/match", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
