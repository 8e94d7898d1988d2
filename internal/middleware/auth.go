package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mwork/credits-api/internal/pkg/jwt"
	"github.com/mwork/credits-api/internal/pkg/response"
)

type contextKey string

const (
	AccountIDKey contextKey = "account_id"
	RoleKey      contextKey = "role"
)

// Auth returns middleware that validates JWT
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract token from header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			// Check Bearer prefix
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			// Validate token
			claims, err := jwtService.ValidateAccessToken(parts[1])
			if err != nil {
				if err == jwt.ErrExpiredToken {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			// Add claims to context
			ctx := context.WithValue(r.Context(), AccountIDKey, claims.AccountID)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccountID extracts the caller's account ID from context
func GetAccountID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(AccountIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetRole extracts role from context
func GetRole(ctx context.Context) string {
	if role, ok := ctx.Value(RoleKey).(string); ok {
		return role
	}
	return ""
}

// RequireAccountAccess returns middleware that lets a caller through only when
// the account in URL param `param` is its own, or when it is an admin.
// Must be installed on a router where the param is already matched.
func RequireAccountAccess(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetRole(r.Context()) == jwt.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}

			target, err := uuid.Parse(chi.URLParam(r, param))
			if err != nil {
				response.BadRequest(w, "Invalid account ID")
				return
			}

			caller := GetAccountID(r.Context())
			if caller == uuid.Nil || caller != target {
				response.Forbidden(w, "Access to this account is not allowed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
