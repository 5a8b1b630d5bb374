// Package httpserver provides the HTTP REST API for the review generation
// service: job submission, status, result retrieval, cancellation, and a
// server-sent progress stream.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/review-generation-service/internal/database"
	"github.com/helixir/review-generation-service/internal/repository"
	"github.com/helixir/review-generation-service/internal/temporal"
)

// WorkflowClient defines the workflow operations the HTTP server needs.
// Satisfied by *temporal.JobWorkflowClient.
type WorkflowClient interface {
	StartReviewJobWorkflow(ctx context.Context, workflowFunc interface{}, input temporal.ReviewJobWorkflowInput) (workflowID, runID string, err error)
	CancelWorkflow(ctx context.Context, workflowID, runID string) error
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, result interface{}) error
	Health(ctx context.Context) error
}

// Server is the HTTP REST API server.
type Server struct {
	router         chi.Router
	httpServer     *http.Server
	workflowClient WorkflowClient
	workflowFunc   interface{} // The Temporal workflow function reference.
	jobRepo        repository.JobRepository
	paperRepo      repository.PaperRepository
	db             *database.DB
	validate       *validator.Validate
	maxActiveJobs  int
	logger         zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MaxActiveJobsPerUser is the per-user concurrent job quota enforced at
	// submission time. Default: 3.
	MaxActiveJobsPerUser int
}

// NewServer creates a new HTTP server with all dependencies.
// workflowFunc is the Temporal workflow function reference
// (workflows.ReviewJobWorkflow) passed through to StartReviewJobWorkflow.
func NewServer(
	cfg Config,
	workflowClient WorkflowClient,
	workflowFunc interface{},
	jobRepo repository.JobRepository,
	paperRepo repository.PaperRepository,
	db *database.DB,
	logger zerolog.Logger,
) *Server {
	maxActive := cfg.MaxActiveJobsPerUser
	if maxActive <= 0 {
		maxActive = 3
	}

	s := &Server{
		workflowClient: workflowClient,
		workflowFunc:   workflowFunc,
		jobRepo:        jobRepo,
		paperRepo:      paperRepo,
		db:             db,
		validate:       validator.New(),
		maxActiveJobs:  maxActive,
		logger:         logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogMiddleware)

	// Health endpoints (no auth)
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	// API routes require an authenticated user identity.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(userContextMiddleware)
		r.Use(jsonContentTypeMiddleware)

		r.Post("/reviews", s.submitReview)
		r.Get("/reviews", s.listReviews)
		r.Get("/reviews/{jobID}", s.getReviewStatus)
		r.Get("/reviews/{jobID}/result", s.getReviewResult)
		r.Get("/reviews/{jobID}/papers", s.listReviewPapers)
		r.Get("/reviews/{jobID}/progress", s.streamProgress)
		r.Post("/reviews/{jobID}/cancel", s.cancelReview)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status including Temporal connectivity.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	if err := s.workflowClient.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": "healthy",
			"temporal": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
		"temporal": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
