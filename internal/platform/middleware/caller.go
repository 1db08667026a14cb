package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// Caller is the authenticated-user context supplied by the upstream
// authentication layer. Tenant scoping is always explicit: handlers read the
// company ID from here and thread it through every data-access call.
type Caller struct {
	UserID       id.UserID
	CompanyID    id.CompanyID
	IsSuperAdmin bool
}

type callerKey struct{}

// GetCaller retrieves the authenticated caller from the context.
// The zero Caller is returned when authentication middleware did not run.
func GetCaller(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey{}).(Caller); ok {
		return c
	}
	return Caller{}
}

// WithCaller injects a caller into the context. Exposed for tests and internal
// dispatch paths (the retry scheduler acts without an HTTP request).
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

type callerClaims struct {
	UserID       string `json:"uid"`
	CompanyID    string `json:"cid"`
	IsSuperAdmin bool   `json:"super_admin"`
	jwt.RegisteredClaims
}

// Authenticate validates the platform bearer token and stores the caller in
// the request context. Token issuance belongs to the upstream session layer;
// this middleware only consumes it.
func Authenticate(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	key := []byte(signingKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				writeAuthError(w, "missing bearer token")
				return
			}

			claims := new(callerClaims)
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
					return nil, jwt.ErrTokenUnverifiable
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "unauthorized request",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeAuthError(w, "invalid token")
				return
			}

			userID, err := id.ParseUserID(claims.UserID)
			if err != nil {
				writeAuthError(w, "invalid token subject")
				return
			}
			var companyID id.CompanyID
			if claims.CompanyID != "" {
				companyID, err = id.ParseCompanyID(claims.CompanyID)
				if err != nil {
					writeAuthError(w, "invalid token company")
					return
				}
			}

			caller := Caller{
				UserID:       userID,
				CompanyID:    companyID,
				IsSuperAdmin: claims.IsSuperAdmin,
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// RequireSuperAdmin rejects callers without the platform super-admin flag.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetCaller(r.Context()).IsSuperAdmin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             "unauthorized",
		"error_description": desc,
	})
}
