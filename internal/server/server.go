// Package server exposes the research pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"deep-researcher/internal/config"
	"deep-researcher/internal/coordinator"
	"deep-researcher/internal/report"
	"deep-researcher/internal/tools"
	"deep-researcher/pkg/interfaces"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Runner runs research queries
type Runner interface {
	Run(ctx context.Context, query string) (*interfaces.Report, error)
	PlanOnly(ctx context.Context, query string) (*interfaces.Plan, []interfaces.Subtask, error)
}

// FanOutReporter is implemented by runners that report their last fan-out
type FanOutReporter interface {
	LastFanOut() coordinator.EngineStats
}

// Server serves the research API
type Server struct {
	runner   Runner
	archive  interfaces.Archive
	config   *config.ResearcherConfig
	router   *mux.Router
	server   *http.Server
	validate *validator.Validate
	logger   zerolog.Logger
}

// APIResponse wraps every JSON response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ResearchRequest is the body of POST /research and POST /plan
type ResearchRequest struct {
	Query string `json:"query" validate:"required,max=4000"`
}

// ResearchResponse carries the report and its rendered Markdown
type ResearchResponse struct {
	Report   *interfaces.Report `json:"report"`
	Markdown string             `json:"markdown"`
}

// PlanResponse carries a plan and its subtasks
type PlanResponse struct {
	Plan     *interfaces.Plan     `json:"plan"`
	Subtasks []interfaces.Subtask `json:"subtasks"`
}

// New creates a server. archive may be nil.
func New(cfg *config.ResearcherConfig, runner Runner, archive interfaces.Archive, logger zerolog.Logger) *Server {
	s := &Server{
		runner:   runner,
		archive:  archive,
		config:   cfg,
		router:   mux.NewRouter(),
		validate: validator.New(),
		logger:   logger.With().Str("component", "server").Logger(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.corsMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/research", s.handleResearch).Methods("POST", "OPTIONS")
	api.HandleFunc("/plan", s.handlePlan).Methods("POST", "OPTIONS")
	api.HandleFunc("/archive/search", s.handleArchiveSearch).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.server.Addr).Msg("starting research API server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("server stopped")
	return nil
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.RequestURI).
			Str("remote", r.RemoteAddr).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   Version,
		"archive":   s.archive != nil,
	}
	if reporter, ok := s.runner.(FanOutReporter); ok {
		data["last_fan_out"] = reporter.LastFanOut()
	}
	s.writeJSONResponse(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	rep, err := s.runner.Run(r.Context(), req.Query)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ResearchResponse{Report: rep, Markdown: report.Render(rep)},
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	plan, subtasks, err := s.runner.PlanOnly(r.Context(), req.Query)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    PlanResponse{Plan: plan, Subtasks: subtasks},
	})
}

func (s *Server) handleArchiveSearch(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "archive is not enabled")
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "query is required")
		return
	}

	topK := getQueryParamInt(r, "top_k", s.config.Archive.TopK)
	if topK < 1 {
		topK = 1
	} else if topK > tools.MaxArchiveTopK {
		topK = tools.MaxArchiveTopK
	}

	hits, err := s.archive.Search(r.Context(), query, topK)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSONResponse(w, http.StatusOK, APIResponse{Success: true, Data: hits})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, APIResponse{Success: true, Data: s.config.Masked()})
}

// decodeRequest parses and validates a ResearchRequest, writing the error
// response itself when that fails
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*ResearchRequest, bool) {
	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return nil, false
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "query is required and must be at most 4000 characters")
		return nil, false
	}
	return &req, true
}

// writeRunError maps pipeline errors to HTTP statuses
func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrEmptyQuery):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	case interfaces.IsGenerationError(err):
		status = http.StatusBadGateway
	}
	s.logger.Error().Err(err).Int("status", status).Msg("research request failed")
	s.writeErrorResponse(w, status, err.Error())
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSONResponse(w, status, APIResponse{Success: false, Error: message})
}

func getQueryParamInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}
