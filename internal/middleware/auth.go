package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tableserve/tableserve-auth/internal/crypto"
	"github.com/tableserve/tableserve-auth/internal/metrics"
	"github.com/tableserve/tableserve-auth/internal/model"
	"github.com/tableserve/tableserve-auth/internal/service"
)

const bearerPrefix = "Bearer "

const (
	msgExpiredToken = "Invalid or expired token"
	msgInvalidToken = "Invalid token"
	msgInternal     = "internal server error"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	ExtractSubject(token string) (string, error)
	IsValid(token, expectedSubject string) bool
}

// IdentityLoader resolves the authorization profile of a token subject.
type IdentityLoader interface {
	LoadIdentity(ctx context.Context, username string) (model.Identity, error)
}

// Gate returns middleware that authenticates requests carrying a Bearer token.
//
// Requests without a Bearer token pass through unauthenticated; handlers
// decide whether they need an identity. A presented token that fails
// verification ends the request with 401.
func Gate(tokens TokenVerifier, identities IdentityLoader, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	observe := func(outcome string) {
		if m != nil {
			m.GateTotal.WithLabelValues(outcome).Inc()
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !found {
				observe(metrics.OutcomeAnonymous)
				next.ServeHTTP(w, r)
				return
			}

			subject, err := tokens.ExtractSubject(token)
			if err != nil {
				if errors.Is(err, crypto.ErrExpiredToken) {
					observe(metrics.OutcomeExpired)
					writeMessage(w, http.StatusUnauthorized, msgExpiredToken)
					return
				}
				logger.DebugContext(r.Context(), "bearer token rejected", "error", err)
				observe(metrics.OutcomeInvalid)
				writeMessage(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}

			identity, err := identities.LoadIdentity(r.Context(), subject)
			if err != nil {
				if errors.Is(err, service.ErrUserNotFound) {
					observe(metrics.OutcomeUnknownSubject)
					writeMessage(w, http.StatusUnauthorized, msgInvalidToken)
					return
				}
				logger.ErrorContext(r.Context(), "identity lookup failed", "error", err)
				observe(metrics.OutcomeError)
				writeMessage(w, http.StatusInternalServerError, msgInternal)
				return
			}

			if !tokens.IsValid(token, identity.Username) {
				observe(metrics.OutcomeSubjectMismatch)
				next.ServeHTTP(w, r)
				return
			}

			observe(metrics.OutcomeSuccess)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying the authenticated identity.
func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext extracts the authenticated identity from the request context.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(model.Identity)
	return identity, ok
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
