// Package http exposes the ledger, guard and export surfaces as a local
// JSON API, with server-sent events for the reactive monthly view.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"pocketledger/internal/cache"
	"pocketledger/internal/core"
	"pocketledger/internal/export"
	"pocketledger/internal/guard"
	"pocketledger/internal/ledger"
	"pocketledger/internal/log"
	"pocketledger/internal/storage"
)

type Server struct {
	http.Server

	logger   *log.Logger
	ledger   *ledger.Aggregator
	guard    *guard.Guard
	store    *storage.Repository
	exporter *export.Exporter
	loc      *time.Location

	rateLimiter  *rateLimiter
	summaryCache *cache.TTLCache[core.MonthSummary]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, logger *log.Logger, agg *ledger.Aggregator, g *guard.Guard, repo *storage.Repository, exp *export.Exporter, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger:       logger.WithComponent(log.ComponentHTTP),
		ledger:       agg,
		guard:        g,
		store:        repo,
		exporter:     exp,
		loc:          loc,
		rateLimiter:  newRateLimiter(),
		summaryCache: cache.NewTTLCache[core.MonthSummary](100, 5*time.Minute),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/transactions", s.withSecurityHeaders(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.withSecurityHeaders(s.handleCreateTransaction))
	mux.HandleFunc("DELETE /api/transactions", s.withSecurityHeaders(s.handleDeleteAllTransactions))
	mux.HandleFunc("GET /api/transactions/{id}", s.withSecurityHeaders(s.handleGetTransaction))
	mux.HandleFunc("PUT /api/transactions/{id}", s.withSecurityHeaders(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withSecurityHeaders(s.handleDeleteTransaction))

	mux.HandleFunc("GET /api/summary", s.withSecurityHeaders(s.handleSummary))
	mux.HandleFunc("GET /api/events", s.withSecurityHeaders(s.handleEvents))

	mux.HandleFunc("GET /api/categories", s.withSecurityHeaders(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.withSecurityHeaders(s.handleCreateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.withSecurityHeaders(s.handleDeleteCategory))

	mux.HandleFunc("POST /api/export", s.withSecurityHeaders(s.handleExport))

	mux.HandleFunc("GET /api/lock/status", s.withSecurityHeaders(s.handleLockStatus))
	mux.HandleFunc("POST /api/lock/setup", s.withSecurityHeaders(s.handleLockSetup))
	mux.HandleFunc("POST /api/lock/confirm", s.withSecurityHeaders(s.handleLockConfirm))
	mux.HandleFunc("POST /api/lock/validate", s.withSecurityHeaders(s.handleLockValidate))
	mux.HandleFunc("POST /api/lock/activity", s.withSecurityHeaders(s.handleLockActivity))
	mux.HandleFunc("PUT /api/lock/pin", s.withSecurityHeaders(s.handleChangePin))
	mux.HandleFunc("DELETE /api/lock/pin", s.withSecurityHeaders(s.handleRemovePin))

	return s
}

// Shutdown stops the background cleanup goroutines before closing the
// listener. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting on writes, a
// request ID and request logging.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			s.logger.Warn("Rate limit exceeded",
				log.FieldRequestID, requestID,
				"client_ip", clientIP,
				"method", r.Method,
				"url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self'")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.Info("Request completed",
			log.FieldRequestID, requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps the SSE endpoint working through the logging wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
