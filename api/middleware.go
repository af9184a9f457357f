package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/warp/casebook/casebook"
)

// UserHeader carries the signed-in worker's email. The frontend sets it from
// its identity provider session.
const UserHeader = "X-User-Email"

// RequestLogger logs one line per request.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// RequireUser rejects requests whose X-User-Email is not allowed, and records
// the caller as the actor for audit entries. A nil policy allows everyone.
func RequireUser(access AccessPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := strings.TrimSpace(r.Header.Get(UserHeader))
			if access != nil && !access.IsAllowed(email) {
				writeError(w, http.StatusForbidden, "Access denied", nil)
				return
			}
			if email != "" {
				r = r.WithContext(casebook.WithActor(r.Context(), email))
			}
			next.ServeHTTP(w, r)
		})
	}
}
