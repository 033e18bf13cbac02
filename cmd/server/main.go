package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/tomharte/criteria/celop"
	"github.com/tomharte/criteria/criteria"
	"github.com/tomharte/criteria/internal/logger"
)

type Server struct {
	db      *sql.DB // nil unless the postgres backend is active
	service *criteria.Service
	router  *chi.Mux
}

// NewServer picks the store backend from the environment: DATABASE_URL
// selects postgres, CRITERIA_FILE a read-only YAML document, and with
// neither set definitions live in memory.
func NewServer() (*Server, error) {
	var store criteria.Store
	var db *sql.DB

	switch {
	case os.Getenv("DATABASE_URL") != "":
		var err error
		db, err = sql.Open("postgres", os.Getenv("DATABASE_URL"))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store = criteria.NewPostgresStore(db)
		logger.Info("using postgres criteria store")

	case os.Getenv("CRITERIA_FILE") != "":
		fs, err := criteria.NewFileStore(os.Getenv("CRITERIA_FILE"))
		if err != nil {
			return nil, fmt.Errorf("failed to load criteria file: %w", err)
		}
		store = fs
		logger.Info("using file criteria store", "path", os.Getenv("CRITERIA_FILE"))

	default:
		store = criteria.NewInMemoryStore()
		logger.Info("using in-memory criteria store")
	}

	service := criteria.NewService(store)

	// The cel operator is available to every definition served here.
	if _, err := celop.Register(service.Engine()); err != nil {
		return nil, fmt.Errorf("failed to register cel operator: %w", err)
	}

	s := &Server{
		db:      db,
		service: service,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	// Evaluation
	r.Post("/api/v1/evaluate", s.handleEvaluate)
	r.Post("/api/v1/evaluate/batch", s.handleEvaluateBatch)

	// Criteria management
	r.Route("/api/v1/criteria", func(r chi.Router) {
		r.Get("/", s.handleListCriteria)
		r.Post("/", s.handleCreateCriteria)

		r.Route("/{criteriaId}", func(r chi.Router) {
			r.Get("/", s.handleGetCriteria)
			r.Put("/", s.handleUpdateCriteria)
			r.Delete("/", s.handleDeleteCriteria)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
	})
}

// Metrics handler exposes the logger counters
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"total_evaluations": logger.TotalEvaluations.Load(),
		"total_errors":      logger.TotalErrors.Load(),
		"total_warnings":    logger.TotalWarnings.Load(),
		"http_4xx":          logger.Total4xxErrors.Load(),
		"http_5xx":          logger.Total5xxErrors.Load(),
	})
}

// Evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err)
		return
	}
	if (req.CriteriaID == "") == (req.Criteria == nil) {
		respondError(w, http.StatusBadRequest, "exactly one of criteria_id or criteria is required", nil)
		return
	}

	var result *criteria.EvaluationResult
	var err error
	if req.CriteriaID != "" {
		result, err = s.service.Evaluate(req.CriteriaID, req.Data)
	} else {
		result, err = s.service.Engine().Evaluate(req.Criteria, req.Data)
	}
	if err != nil {
		if criteria.IsConfigurationError(err) {
			respondError(w, http.StatusUnprocessableEntity, "invalid criteria definition", err)
			return
		}
		respondError(w, http.StatusNotFound, "evaluation failed", err)
		return
	}

	logger.TotalEvaluations.Add(1)
	logger.Debug("evaluated criteria",
		"criteria", result.CriteriaID,
		"passed", result.Passed,
		"score", result.Score,
	)

	respondJSON(w, http.StatusOK, result)
}

// Batch evaluation handler. Entities are independent, so the fan-out runs
// them concurrently; responses keep request order.
func (s *Server) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchEvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err)
		return
	}

	c, err := s.service.Get(req.CriteriaID)
	if err != nil {
		respondError(w, http.StatusNotFound, "criteria not found", err)
		return
	}

	engine := s.service.Engine()
	results := make([]BatchEntityResult, len(req.Entities))
	var wg sync.WaitGroup
	for i, entity := range req.Entities {
		wg.Add(1)
		go func(idx int, data map[string]any) {
			defer wg.Done()
			result, err := engine.Evaluate(c, data)
			if err != nil {
				results[idx] = BatchEntityResult{Index: idx, Error: err.Error()}
				return
			}
			results[idx] = BatchEntityResult{Index: idx, Result: result}
		}(i, entity)
	}
	wg.Wait()

	logger.TotalEvaluations.Add(int64(len(req.Entities)))

	respondJSON(w, http.StatusOK, map[string]any{
		"criteria_id": req.CriteriaID,
		"results":     results,
	})
}

// List criteria handler
func (s *Server) handleListCriteria(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListActive()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list criteria", err)
		return
	}

	out := make([]CriteriaResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCriteriaResponse(c))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"criteria": out,
	})
}

// Create criteria handler
func (s *Server) handleCreateCriteria(w http.ResponseWriter, r *http.Request) {
	var req CreateCriteriaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err)
		return
	}

	c := req.toCriteria(uuid.NewString())

	if err := s.service.Add(c); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add criteria", err)
		return
	}

	logger.Info("criteria created", "id", c.ID, "name", c.Name)

	respondJSON(w, http.StatusCreated, toCriteriaResponse(c))
}

// Get criteria handler
func (s *Server) handleGetCriteria(w http.ResponseWriter, r *http.Request) {
	criteriaID := chi.URLParam(r, "criteriaId")

	c, err := s.service.Get(criteriaID)
	if err != nil {
		respondError(w, http.StatusNotFound, "criteria not found", err)
		return
	}

	respondJSON(w, http.StatusOK, toCriteriaResponse(c))
}

// Update criteria handler
func (s *Server) handleUpdateCriteria(w http.ResponseWriter, r *http.Request) {
	criteriaID := chi.URLParam(r, "criteriaId")

	var req UpdateCriteriaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err)
		return
	}

	c := req.toCriteria(criteriaID)

	if err := s.service.Update(c); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update criteria", err)
		return
	}

	respondJSON(w, http.StatusOK, toCriteriaResponse(c))
}

// Delete criteria handler
func (s *Server) handleDeleteCriteria(w http.ResponseWriter, r *http.Request) {
	criteriaID := chi.URLParam(r, "criteriaId")

	if err := s.service.Delete(criteriaID); err != nil {
		respondError(w, http.StatusNotFound, "criteria not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	switch {
	case status >= 500:
		logger.ErrorHttp5xx()
	case status >= 400:
		logger.WarnHttp4xx()
	}

	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	// Optional .env file for local development
	_ = godotenv.Load()

	server, err := NewServer()
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	_ = logger.Shutdown(ctx)
}
