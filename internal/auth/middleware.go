package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	ClaimsKey contextKey = "claims"
	UserIDKey contextKey = "userID"
	OrgIDKey  contextKey = "orgID"
	RolesKey  contextKey = "roles"
)

const maxTokenBytes = 8192

// ErrorResponse is the JSON error envelope shared by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*Claims); ok {
		return claims
	}
	return nil
}

func UserIDFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(UserIDKey).(int64); ok {
		return id
	}
	return 0
}

func OrgIDFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(OrgIDKey).(int64); ok {
		return id
	}
	return 0
}

func RolesFromContext(ctx context.Context) []string {
	if roles, ok := ctx.Value(RolesKey).([]string); ok {
		return roles
	}
	return nil
}

// WithClaims stores claims and the values derived from them in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, OrgIDKey, claims.OrgID)
	return context.WithValue(ctx, RolesKey, claims.Roles)
}

// WriteError writes the JSON error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

func validateTokenFormat(tokenString string) error {
	if tokenString == "" {
		return errors.New("token cannot be empty")
	}
	if len(tokenString) > maxTokenBytes {
		return errors.New("token size exceeds maximum allowed")
	}
	if strings.Count(tokenString, ".") != 2 {
		return errors.New("invalid JWT token format")
	}
	return nil
}

// classify maps a parse failure to an error code and message.
func classify(err error) (string, string) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "TOKEN_EXPIRED", "Token has expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "MALFORMED_TOKEN", "Token is malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "INVALID_SIGNATURE", "Token signature is invalid"
	case errors.Is(err, jwt.ErrTokenInvalidAudience), errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "INVALID_TOKEN", "Token was not issued for this service"
	}
	return "INVALID_TOKEN", "Invalid or expired token"
}

// AuthMiddleware requires a valid bearer token and stores its claims in the
// request context. Tokens expiring within the hour get X-Token-Expires-* headers.
func AuthMiddleware(jwtManager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				WriteError(w, http.StatusUnauthorized, "MISSING_AUTH_HEADER", "Authorization header required")
				return
			}
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				WriteError(w, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Invalid authorization header format. Expected: Bearer <token>")
				return
			}
			if err := validateTokenFormat(tokenString); err != nil {
				WriteError(w, http.StatusUnauthorized, "INVALID_TOKEN_FORMAT", "Invalid token format: "+err.Error())
				return
			}

			claims, err := jwtManager.ValidateToken(tokenString)
			if err != nil {
				code, msg := classify(err)
				WriteError(w, http.StatusUnauthorized, code, msg)
				return
			}
			if claims.UserID <= 0 || claims.OrgID <= 0 {
				WriteError(w, http.StatusUnauthorized, "INVALID_CLAIMS", "Token is missing user or organization")
				return
			}
			if len(claims.Roles) == 0 {
				WriteError(w, http.StatusUnauthorized, "NO_ROLES", "No roles assigned to user")
				return
			}

			if claims.IsExpiringSoon(time.Hour) {
				exp := claims.ExpiresAt.Time
				w.Header().Set("X-Token-Expires-At", exp.Format(time.RFC3339))
				w.Header().Set("X-Token-Expires-In", time.Until(exp).Round(time.Second).String())
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// MustRole rejects callers holding none of roles with 403.
func MustRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				WriteError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required")
				return
			}
			if !claims.HasRole(roles...) {
				WriteError(w, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
