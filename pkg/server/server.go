// Package server exposes workflows, node definitions and code generation
// over HTTP for the visual editor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ravi-parthasarathy/agentblocks/pkg/codegen"
	"github.com/ravi-parthasarathy/agentblocks/pkg/export"
	"github.com/ravi-parthasarathy/agentblocks/pkg/store"
	"github.com/ravi-parthasarathy/agentblocks/pkg/workflow"
)

// maxBody caps request bodies.
const maxBody = 8 << 20

// Server routes API requests to the store, the compiler and the runner.
type Server struct {
	cfg    *Config
	router *mux.Router
	now    func() time.Time
}

// New builds a Server from a config returned by NewConfig.
func New(cfg *Config) *Server {
	s := &Server{cfg: cfg, router: mux.NewRouter(), now: time.Now}
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition", "Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	r := s.router.PathPrefix("/api").Subrouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/workflows", s.handleListWorkflows).Methods(http.MethodGet)
	r.HandleFunc("/workflows", s.handleCreateWorkflow).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}", s.handleGetWorkflow).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}", s.handleUpdateWorkflow).Methods(http.MethodPut)
	r.HandleFunc("/workflows/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete)
	r.HandleFunc("/workflows/{id}/nodes", s.handleAddNode).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/nodes/{nodeID}", s.handleDeleteNode).Methods(http.MethodDelete)
	r.HandleFunc("/workflows/{id}/connections", s.handleAddConnection).Methods(http.MethodPost)
	r.HandleFunc("/workflows/{id}/connections/{connID}", s.handleDeleteConnection).Methods(http.MethodDelete)

	r.HandleFunc("/workflows/{id}/validate", s.handleValidate).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/code", s.handleCode).Methods(http.MethodGet)
	r.HandleFunc("/workflows/{id}/export", s.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	r.HandleFunc("/execute/{id}", s.handleExecute).Methods(http.MethodPost)

	r.HandleFunc("/definitions", s.handleListDefinitions).Methods(http.MethodGet)
	r.HandleFunc("/definitions/{type}", s.handleGetDefinition).Methods(http.MethodGet)
	r.HandleFunc("/definitions/{type}/validate", s.handleValidateProperties).Methods(http.MethodPost)

	// Pre-flight requests are answered by the CORS middleware, but mux only
	// runs middleware for matched routes.
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and saves the store when a snapshot path is configured.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.cfg.Logger.Info("listening", "addr", s.cfg.Addr, "execute", s.cfg.AllowExecute)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if s.cfg.SnapshotPath != "" {
		if err := s.cfg.Store.Save(s.cfg.SnapshotPath); err != nil {
			return err
		}
		s.cfg.Logger.Info("saved workflows", "path", s.cfg.SnapshotPath)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.cfg.Logger.Warn("write response", "error", err)
	}
}

type errorBody struct {
	Error  string               `json:"error"`
	Errors []workflow.LintError `json:"errors,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

// fail maps an error from a lower layer onto an HTTP status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, store.ErrInvalid), errors.Is(err, codegen.ErrUnknownTarget):
		status = http.StatusBadRequest
	case errors.Is(err, export.ErrInvalid):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.cfg.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeError(w, status, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", store.ErrInvalid, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}
