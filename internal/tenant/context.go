// internal/tenant/context.go
// Tenant-context boundary: every request carries (user_id, tenant_id).
// The engine never resolves identity itself; it trusts the claims supplied
// by the platform's auth gateway.

package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const (
	userIDKey   contextKey = "userID"
	tenantIDKey contextKey = "tenantID"
)

var ErrNoIdentity = errors.New("no tenant identity in context")

// Claims are the platform access-token claims the engine cares about.
type Claims struct {
	UserID   int64  `json:"user_id"`
	TenantID int64  `json:"tenant_id"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// ParseToken validates a platform access token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// WithIdentity attaches a (user, tenant) pair to the context.
// Used by the middleware and by in-process callers (cron jobs, tests).
func WithIdentity(ctx context.Context, userID, tenantID int64) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// Identity extracts the (user, tenant) pair from the context.
func Identity(ctx context.Context) (userID, tenantID int64, err error) {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0, 0, ErrNoIdentity
	}
	tenantID, ok = ctx.Value(tenantIDKey).(int64)
	if !ok {
		return 0, 0, ErrNoIdentity
	}
	return userID, tenantID, nil
}
