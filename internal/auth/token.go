package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Service token scopes. The core has no end users of its own; callers are
// other services (the cron scheduler, the portal's identity glue).
const (
	ScopeCron     = "cron"
	ScopeInternal = "internal"
)

// ServiceTokenClaims are the claims carried by a service token.
type ServiceTokenClaims struct {
	Scope   string `json:"scope"`
	Service string `json:"service"`
	jwt.RegisteredClaims
}

// ServiceTokenManager issues and validates the HS256 tokens that service
// callers present on internal endpoints.
type ServiceTokenManager struct {
	secret []byte
	expiry time.Duration
}

// NewServiceTokenManager creates a new ServiceTokenManager
func NewServiceTokenManager(secret string, expiry time.Duration) *ServiceTokenManager {
	return &ServiceTokenManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Generate creates a token for the named service with the given scope.
func (tm *ServiceTokenManager) Generate(service, scope string) (string, error) {
	now := time.Now()
	claims := &ServiceTokenClaims{
		Scope:   scope,
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign service token: %w", err)
	}
	return signed, nil
}

// Validate parses the token and checks signature, expiry and scope.
func (tm *ServiceTokenManager) Validate(tokenString, requiredScope string) (*ServiceTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceTokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid service token: %w", err)
	}

	claims, ok := token.Claims.(*ServiceTokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid service token claims")
	}

	if claims.Scope != requiredScope {
		return nil, fmt.Errorf("token scope %q does not cover %q", claims.Scope, requiredScope)
	}

	return claims, nil
}
