// Package http exposes the accessor, sync and analytics APIs as JSON
// endpoints.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"kharcha/internal/services"
)

type Server struct {
	http.Server

	reference *services.ReferenceService
	expenses  *services.ExpenseService
	sync      *services.SyncService
	analytics *services.AnalyticsService

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and limits, returning a ready-to-run server.
func NewServer(addr string,
	reference *services.ReferenceService,
	expenses *services.ExpenseService,
	syncService *services.SyncService,
	analytics *services.AnalyticsService,
) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:           addr,
			Handler:        mux,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 16,
		},
		reference:   reference,
		expenses:    expenses,
		sync:        syncService,
		analytics:   analytics,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/api/categories", s.withLimits(s.handleCategories))
	mux.HandleFunc("/api/subcategories", s.withLimits(s.handleSubCategories))
	mux.HandleFunc("/api/expenses", s.withLimits(s.handleExpenses))
	mux.HandleFunc("/api/expenses/", s.withLimits(s.handleExpenseByID))
	mux.HandleFunc("/api/expenses/month-total", s.withLimits(s.handleMonthTotal))
	mux.HandleFunc("/api/sync/bootstrap", s.withLimits(s.handleBootstrap))
	mux.HandleFunc("/api/sync/push", s.withLimits(s.handlePush))
	mux.HandleFunc("/api/sync/categories", s.withLimits(s.handleSyncCategories))
	mux.HandleFunc("/api/sync/subcategories", s.withLimits(s.handleSyncSubcategories))
	mux.HandleFunc("/api/sync/status", s.withLimits(s.handleSyncStatus))
	mux.HandleFunc("/api/analytics/category-breakdown", s.withLimits(s.handleCategoryBreakdown))
	mux.HandleFunc("/api/analytics/weekly-spending", s.withLimits(s.handleWeeklySpending))
	mux.HandleFunc("/api/analytics/summary", s.withLimits(s.handleSummary))
	mux.HandleFunc("/healthz", s.handleHealth)

	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Simple in-memory per-IP rate limiter.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes.
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 120 requests per minute
	client.requests++
	client.lastRequest = now
	return client.requests <= 120
}

func (s *Server) withLimits(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.allow(clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
