// Package http exposes the forecast and snapshot API over JSON.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"forecast/internal/services"
)

type Server struct {
	http.Server
	svc         *services.ForecastService
	rateLimiter *rateLimiter
	metrics     *securityMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server bound to addr.
func NewServer(addr string, svc *services.ForecastService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		svc:         svc,
		rateLimiter: newRateLimiter(),
		metrics:     &securityMetrics{},
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/forecasts", s.withMiddleware(s.handleListForecasts))
	mux.HandleFunc("POST /api/forecasts", s.withMiddleware(s.handleCreateForecast))
	mux.HandleFunc("GET /api/forecasts/{id}", s.withMiddleware(s.handleGetForecast))
	mux.HandleFunc("DELETE /api/forecasts/{id}", s.withMiddleware(s.handleDeleteForecast))
	mux.HandleFunc("PATCH /api/forecasts/{id}/field", s.withMiddleware(s.handleUpdateField))
	mux.HandleFunc("PATCH /api/forecasts/{id}/yearly-sum", s.withMiddleware(s.handleUpdateYearlySum))

	mux.HandleFunc("POST /api/snapshots", s.withMiddleware(s.handleCaptureSnapshot))
	mux.HandleFunc("POST /api/snapshots/batch", s.withMiddleware(s.handleCaptureBatch))
	mux.HandleFunc("GET /api/snapshots", s.withMiddleware(s.handleListSnapshots))
	mux.HandleFunc("GET /api/snapshots/{id}", s.withMiddleware(s.handleGetSnapshot))
	mux.HandleFunc("POST /api/snapshots/{id}/approve", s.withMiddleware(s.handleApproveSnapshot))
	mux.HandleFunc("DELETE /api/snapshots/{id}", s.withMiddleware(s.handleDeleteSnapshot))

	mux.HandleFunc("GET /api/batches", s.withMiddleware(s.handleListBatches))
	mux.HandleFunc("POST /api/batches/{batchID}/approve", s.withMiddleware(s.handleApproveBatch))

	mux.HandleFunc("GET /api/aggregates", s.withMiddleware(s.handleAggregates))
	mux.HandleFunc("GET /api/departments", s.withMiddleware(s.handleListDepartments))
	mux.HandleFunc("GET /api/projects", s.withMiddleware(s.handleListProjects))

	return s
}

// withMiddleware adds security headers, rate limiting, and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit mutating requests only; reads are cheap.
		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP, s.metrics) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
