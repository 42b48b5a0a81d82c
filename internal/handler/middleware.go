package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/paperdesk/be-doc-approvals/internal/platform/logger"
)

// RequestLogger emits one structured log line per request.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			next.ServeHTTP(ww, r)

			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(started)).
				Msg("request")
		})
	}
}
