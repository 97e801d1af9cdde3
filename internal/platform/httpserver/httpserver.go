package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lineageforge/pkg/platform/httputil"
	"lineageforge/pkg/platform/middleware/metadata"
	"lineageforge/pkg/platform/middleware/requesttime"
	"lineageforge/pkg/requestcontext"
)

// New builds an HTTP server with sane defaults for this project.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// NewRouter wires shared middleware, /healthz, /metrics and the module routes.
func NewRouter(logger *slog.Logger, checks map[string]HealthCheck, modules ...Registrar) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(metadata.RequestMetadata)
	r.Use(requesttime.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(accessLog(logger))

	r.Get("/healthz", healthHandler(checks))
	r.Handle("/metrics", promhttp.Handler())

	for _, m := range modules {
		m.Register(r)
	}
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httputil.WriteJSON(w, code, map[string]any{"status": http.StatusText(code), "checks": status})
	}
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"request_id", requestcontext.RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
