package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const tenantContextKey contextKey = "tenant_id"

// TenantClaims are the JWT claims accepted in place of the X-Tenant-ID/
// X-API-Key header pair, grounded on the teacher's pkg/auth.HelmClaims
// shape (RegisteredClaims plus a tenant binding).
type TenantClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// APIKeyValidator checks a tenant-scoped API key against its stored hash.
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context, tenantID, keyHash string) (bool, error)
}

// JWTSecret verifies bearer tokens signed with HS256; a production
// deployment would use an asymmetric KeySet the way the teacher's
// pkg/identity.KeySet does, but this spec has no key-rotation surface.
type JWTSecret []byte

// TenantAuth enforces spec §6.1: every call is tenant-scoped via
// X-Tenant-ID + X-API-Key, or a bearer JWT carrying a tenant_id claim.
// Missing or invalid credentials fail closed with 401/403, never a
// partial match.
func TenantAuth(keys APIKeyValidator, jwtSecret JWTSecret) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearer, ok := bearerToken(r); ok {
				tenantID, err := validateBearer(bearer, jwtSecret)
				if err != nil {
					WriteError(w, r, http.StatusUnauthorized, "Unauthorized", "invalid or expired bearer token", "")
					return
				}
				next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tenantID)))
				return
			}

			tenantID := r.Header.Get("X-Tenant-ID")
			apiKey := r.Header.Get("X-API-Key")
			if tenantID == "" || apiKey == "" {
				WriteError(w, r, http.StatusUnauthorized, "Unauthorized", "missing X-Tenant-ID/X-API-Key or bearer token", "")
				return
			}

			ok, err := keys.ValidateAPIKey(r.Context(), tenantID, hashKey(apiKey))
			if err != nil {
				WriteFromError(w, r, err)
				return
			}
			if !ok {
				WriteError(w, r, http.StatusForbidden, "Forbidden", "invalid or revoked API key", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tenantID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

func validateBearer(tokenStr string, secret JWTSecret) (string, error) {
	claims := &TenantClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.TenantID == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.TenantID, nil
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func withTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenantID)
}

// TenantFromContext retrieves the tenant ID injected by TenantAuth.
func TenantFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantContextKey).(string)
	return v, ok
}
