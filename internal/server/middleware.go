package server

import (
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/cors"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func routeOf(req *http.Request) string {
	if req.Pattern != "" {
		return req.Pattern
	}
	return req.URL.Path
}

// LoggingMiddleware logs one line per request at debug level, warn for server errors.
func LoggingMiddleware(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, req)

			kv := []any{"method", req.Method, "path", req.URL.Path, "status", rec.status, "elapsed", time.Since(start)}
			if rec.status >= http.StatusInternalServerError {
				logger.Warn("request", kv...)
				return
			}
			logger.Debug("request", kv...)
		})
	}
}

// RecoverMiddleware turns a handler panic into a 500 response.
func RecoverMiddleware(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("handler panicked", "path", req.URL.Path, "panic", p, "stack", string(debug.Stack()))
					writeError(w, http.StatusInternalServerError, "Server error")
				}
			}()
			next.ServeHTTP(w, req)
		})
	}
}

// MetricsMiddleware records request counts and latency, skipping the given paths.
func MetricsMiddleware(m *Metrics, skip ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if slices.Contains(skip, req.URL.Path) {
				next.ServeHTTP(w, req)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, req)
			m.observeRequest(req.Method, routeOf(req), rec.status, time.Since(start))
		})
	}
}

// CORSMiddleware allows browser clients on origins to start jobs and poll status with cookies.
//
// It wraps the whole router so preflight requests are answered before method routing.
func CORSMiddleware(origins []string) Middleware {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           600,
	})
	return c.Handler
}
