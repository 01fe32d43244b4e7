package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/alertcast/internal/api/auth"
	"github.com/good-yellow-bee/alertcast/internal/metrics"
)

type contextKey string

const usernameKey contextKey = "username"

// BasicAuth returns middleware that requires HTTP basic credentials known
// to authn. A disabled authenticator lets every request through.
func BasicAuth(authn *auth.Authenticator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !authn.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}

			client := ClientIP(r)
			if err := authn.Authenticate(username, password, client); err != nil {
				metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
				logger.Warn().Err(err).Str("username", username).Str("client", client).Msg("authentication failed")
				if errors.Is(err, auth.ErrLocked) {
					writeError(w, http.StatusTooManyRequests, "ACCOUNT_LOCKED", "too many failed attempts, try again later")
					return
				}
				unauthorized(w)
				return
			}

			metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
			ctx := context.WithValue(r.Context(), usernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="alertcast", charset="UTF-8"`)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
}

// GetUsername returns the authenticated username from context.
func GetUsername(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}
