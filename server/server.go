// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"release-notifier/poll"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Poller interface for triggering a cycle.
type Poller interface {
	RunOnce(ctx context.Context) (*poll.Result, error)
}

// Server handles HTTP requests.
type Server struct {
	poller  Poller
	metrics http.Handler
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Poller  Poller
	Metrics http.Handler // optional; serves /metrics when set
	Logger  *slog.Logger
	// PollRate limits manual /pollz triggers. Zero means one per minute.
	PollRate  rate.Limit
	PollBurst int
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	limit := cfg.PollRate
	if limit == 0 {
		limit = rate.Every(time.Minute)
	}
	burst := max(cfg.PollBurst, 1)
	return &Server{
		poller:  cfg.Poller,
		metrics: cfg.Metrics,
		limiter: rate.NewLimiter(limit, burst),
		logger:  cfg.Logger,
	}
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/pollz", s.handlePoll)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return otelhttp.NewHandler(r, "release-notifier")
}

// ListenAndServe serves Routes on port until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	// Configure server with timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Routes(),
		ReadTimeout:       10 * time.Second,  // Time to read request headers and body
		WriteTimeout:      2 * time.Minute,   // A manual poll runs a full cycle
		IdleTimeout:       120 * time.Second, // Time to keep connection alive between requests
		ReadHeaderTimeout: 5 * time.Second,   // Time to read request headers only
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "healthy"})
}

type pollResponse struct {
	Status   string `json:"status"`
	CycleID  string `json:"cycle_id,omitempty"`
	Error    string `json:"error,omitempty"`
	Scraped  int    `json:"scraped"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
	Notified bool   `json:"notified"`
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		retryAfter := int(math.Ceil(1.0 / float64(s.limiter.Limit())))
		w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
		writeJSON(w, s.logger, http.StatusTooManyRequests, map[string]string{"status": "rate_limited"})
		return
	}

	s.logger.Info("Poll endpoint triggered")

	// The cycle outlives a client that hangs up; it keeps the request's trace.
	res, err := s.poller.RunOnce(context.WithoutCancel(r.Context()))
	resp := pollResponse{Status: "completed"}
	if res != nil {
		resp.CycleID = res.CycleID
		resp.Scraped = res.Scraped
		resp.Added = len(res.Added)
		resp.Removed = len(res.Removed)
		resp.Notified = res.Notified
	}
	if err != nil {
		s.logger.Error("Poll cycle failed", "error", err)
		resp.Status = "failed"
		resp.Error = err.Error()
		writeJSON(w, s.logger, http.StatusInternalServerError, resp)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}
