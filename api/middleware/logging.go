package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/circulation-backend/pkg/logger"
	"github.com/angelmondragon/circulation-backend/pkg/metrics"
)

// Logging writes one start and one completion line per request and times it
// under the matched chi route pattern. 5xx completions log at warn.
func Logging(logg *logger.Logger, httpMetrics *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{"method": r.Method, "path": r.URL.Path})
				logg.Info(ctx, "request.start")
			}
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := routePattern(r)
			httpMetrics.ObserveRequest(r.Method, route, status, elapsed)
			if logg == nil {
				return
			}

			ctx = logg.WithFields(ctx, map[string]any{
				"bytes":       ww.BytesWritten(),
				"duration_ms": elapsed.Milliseconds(),
				"route":       route,
				"status":      status,
			})
			if status >= http.StatusInternalServerError {
				logg.Warn(ctx, "request.complete")
				return
			}
			logg.Info(ctx, "request.complete")
		})
	}
}

// routePattern is only known after routing, so it is read once the handler
// has returned.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
