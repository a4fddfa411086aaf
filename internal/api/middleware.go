package api

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

// SchedulerTokenHeader carries the shared secret for the run endpoint.
const SchedulerTokenHeader = "X-Scheduler-Token"

// SchedulerAuthMiddleware guards the pass trigger with a shared secret.
// An empty configured token disables the check (local development).
func SchedulerAuthMiddleware(token string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get(SchedulerTokenHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				logger.Warn("scheduler trigger rejected",
					zap.String("remote_addr", r.RemoteAddr),
				)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte("unauthorized"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
