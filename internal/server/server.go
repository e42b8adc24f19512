package server

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/splitledger/internal/ledger"
	"github.com/zombor/splitledger/internal/receipt"
)

// maxUploadSize caps receipt uploads, high-resolution phone photos included
const maxUploadSize = int64(50 << 20)

// Server handles HTTP requests for events, goods and receipts
type Server struct {
	ledger     *ledger.Service
	ingestor   *receipt.Ingestor
	basicAuth  BasicAuth
	mux        *http.ServeMux
	metrics    *Metrics
	httpServer *http.Server
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux and a registry that also
// exports Go runtime and process metrics
func NewServer(ledgerService *ledger.Service, ingestor *receipt.Ingestor, basicAuth BasicAuth) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewServerWithMux(ledgerService, ingestor, basicAuth, http.NewServeMux(), reg)
}

// NewServerWithMux creates a new Server with a custom mux and registry for testing
func NewServerWithMux(ledgerService *ledger.Service, ingestor *receipt.Ingestor, basicAuth BasicAuth, mux *http.ServeMux, reg *prometheus.Registry) *Server {
	s := &Server{
		ledger:    ledgerService,
		ingestor:  ingestor,
		basicAuth: basicAuth,
		mux:       mux,
		metrics:   NewMetrics(reg),
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(credentials[0]), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(credentials[1]), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs every request with its duration
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Split Ledger"`)
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.handler())

	// Events
	s.mux.HandleFunc("GET /api/events", s.requireAuth(s.handleListEvents))
	s.mux.HandleFunc("POST /api/events", s.requireAuth(s.handleCreateEvent))
	s.mux.HandleFunc("GET /api/events/{id}", s.requireAuth(s.handleGetEvent))

	// Goods
	s.mux.HandleFunc("GET /api/events/{id}/goods", s.requireAuth(s.handleListGoods))
	s.mux.HandleFunc("POST /api/events/{id}/goods", s.requireAuth(s.handleAppendItem))
	s.mux.HandleFunc("POST /api/events/{id}/goods/batch", s.requireAuth(s.handleAppendItems))
	s.mux.HandleFunc("PUT /api/events/{id}/goods/{itemID}", s.requireAuth(s.handleUpdateItem))
	s.mux.HandleFunc("DELETE /api/events/{id}/goods/{itemID}", s.requireAuth(s.handleRemoveItem))

	// Receipts
	s.mux.HandleFunc("POST /api/receipts", s.requireAuth(s.handleUploadReceipt))
}

// Handler returns the mux wrapped in the CORS and logging middleware
func (s *Server) Handler() http.Handler {
	return loggingMiddleware(corsMiddleware(s.mux))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	s.httpServer.Addr = addr
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
