package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/apperr"
	"github.com/capiorg/backend-auth/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// Resolver turns a raw access token into the caller's identity
type Resolver interface {
	Resolve(ctx context.Context, raw string) (auth.Identity, error)
}

// Authenticate resolves the Authorization header through the gate and
// attaches the identity to the request context
func Authenticate(gate Resolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.StripBearer(r.Header.Get("Authorization"))
			if token == "" {
				respondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			id, err := gate.Resolve(r.Context(), token)
			if err != nil {
				status, msg := gateFailure(err)
				if status >= http.StatusInternalServerError {
					logger.Error("identity resolution failed", zap.Error(err))
				}
				respondWithError(w, status, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity stores id in ctx
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity attached by Authenticate
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

func gateFailure(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrAccountDisabled):
		return http.StatusForbidden, "account is disabled"
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, "action is not permitted"
	case errors.Is(err, apperr.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "service unavailable"
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
