package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InjectLogger stores lg, tagged with the request id, in the request context.
// Handlers retrieve it with zctx.From.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := lg
			if id := RequestIDFromContext(r.Context()); id != "" {
				l = l.With(zap.String("request_id", id))
			}
			next.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), l)))
		})
	}
}

// LogRequests logs one line per request after it completes. Server errors log
// at error level, client errors at warn, the rest at debug.
func LogRequests() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.code()
			level := zapcore.DebugLevel
			switch {
			case status >= 500:
				level = zapcore.ErrorLevel
			case status >= 400:
				level = zapcore.WarnLevel
			}
			zctx.From(r.Context()).Check(level, "Request").Write(
				zap.String("method", r.Method),
				zap.String("route", RoutePattern(r)),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
