// Package web provides the HTTP API for the product importer: CSV
// uploads, import status and live progress, product CRUD and webhook
// management.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mberg/product-importer/internal/config"
	"github.com/mberg/product-importer/internal/importer"
	"github.com/mberg/product-importer/internal/metrics"
	"github.com/mberg/product-importer/internal/progress"
	"github.com/mberg/product-importer/internal/store"
	"github.com/mberg/product-importer/internal/web/middleware"
	"github.com/mberg/product-importer/internal/webhook"
)

// Server is the HTTP front end.
type Server struct {
	cfg        *config.Config
	imports    *importer.Service
	products   *store.ProductStore
	webhooks   *store.WebhookStore
	hub        *progress.Hub
	dispatcher *webhook.Dispatcher
	metrics    *metrics.Metrics
	router     *chi.Mux
	server     *http.Server
}

func NewServer(
	cfg *config.Config,
	imports *importer.Service,
	products *store.ProductStore,
	webhooks *store.WebhookStore,
	hub *progress.Hub,
	dispatcher *webhook.Dispatcher,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		cfg:        cfg,
		imports:    imports,
		products:   products,
		webhooks:   webhooks,
		hub:        hub,
		dispatcher: dispatcher,
		metrics:    m,
		router:     chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Server.TrustedProxyList()))
	s.router.Use(middleware.Instrument(s.metrics))
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// Import operations
		r.Post("/upload", s.handleUpload)
		r.Get("/upload/task/{taskID}", s.handleTaskStatus)
		r.Get("/upload/task/{taskID}/events", s.handleTaskEvents)

		// Product catalog
		r.Get("/products", s.handleListProducts)
		r.Post("/products", s.handleCreateProduct)
		r.Get("/products/{productID}", s.handleGetProduct)
		r.Put("/products/{productID}", s.handleUpdateProduct)
		r.Delete("/products/{productID}", s.handleDeleteProduct)
		r.Post("/products/bulk-delete", s.handleBulkDeleteProducts)
		r.Delete("/products", s.handleDeleteAllProducts)

		// Webhook management
		r.Get("/webhooks", s.handleListWebhooks)
		r.Post("/webhooks", s.handleCreateWebhook)
		r.Get("/webhooks/{webhookID}", s.handleGetWebhook)
		r.Put("/webhooks/{webhookID}", s.handleUpdateWebhook)
		r.Delete("/webhooks/{webhookID}", s.handleDeleteWebhook)
		r.Post("/webhooks/{webhookID}/test", s.handleTestWebhook)
	})
}

// Start begins listening for HTTP requests and blocks until the server
// stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"active_imports": s.imports.ActiveImports(),
	})
}

// securityHeaders adds baseline security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
