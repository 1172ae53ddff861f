package middleware

import (
	"net/http"

	"go.uber.org/zap"

	logpkg "github.com/benvon/gtd/internal/logger"
	"github.com/benvon/gtd/internal/metrics"
	"github.com/benvon/gtd/internal/request"
)

// ErrorHandler recovers handler panics into a 500 envelope. Nothing is written
// when the handler already started its response.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := newResponseWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				metrics.IncrementHTTPPanic(r.Method)
				logger.Error("panic_recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("subject", request.SubjectFromContext(r)),
					zap.Bool("response_started", rw.wroteHeader),
					zap.Stack("stack"),
				)
				if !rw.wroteHeader {
					respondError(w, http.StatusInternalServerError, "An unexpected error occurred")
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}
