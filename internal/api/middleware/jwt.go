// Package middleware holds the HTTP middleware stack for the console API:
// JWT auth, structured request logging, panic recovery and per-IP rate
// limiting.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const (
	agentIDKey contextKey = "agent_id"
	roleKey    contextKey = "agent_role"
)

// tokenTTL is the lifetime of an operator JWT.
const tokenTTL = 12 * time.Hour

// Claims holds the JWT claims for an operator login.
type Claims struct {
	AgentID  int64  `json:"agent_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for an operator login.
func GenerateToken(secret []byte, agentID int64, username, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tokenTTL)

	claims := Claims{
		AgentID:  agentID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "dialdesk",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// RequireAuth returns middleware that validates JWT bearer tokens. On
// success it stores the agent ID and role in the request context.
func RequireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeMWError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeMWError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("auth: invalid jwt", "error", err)
				writeMWError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if claims.AgentID == 0 {
				writeMWError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), agentIDKey, claims.AgentID)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that allows only the given roles.
// Must be mounted inside RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[RoleFromContext(r.Context())] {
				writeMWError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AgentIDFromContext retrieves the authenticated agent ID. Returns 0 when
// unauthenticated.
func AgentIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(agentIDKey).(int64)
	return id
}

// RoleFromContext retrieves the authenticated agent's role.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// mwEnvelope matches the api package's envelope format for error responses.
type mwEnvelope struct {
	Error string `json:"error,omitempty"`
}

// writeMWError writes a JSON error matching the API envelope format.
func writeMWError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(mwEnvelope{Error: msg}) //nolint:errcheck
}
