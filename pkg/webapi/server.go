// Package webapi exposes the pipeline over a JSON HTTP API: project CRUD,
// prompt preview, generation, rollback, file history, pattern ingestion,
// and provider model listing.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"siteforge/pkg/knowledge"
	"siteforge/pkg/llm"
	"siteforge/pkg/logx"
	"siteforge/pkg/orch"
	"siteforge/pkg/parser"
	"siteforge/pkg/store"
)

// Server is the HTTP front end over the orchestrator and store.
type Server struct {
	store  *store.Store
	index  *knowledge.Index
	orch   *orch.Orchestrator
	logger *logx.Logger
}

// NewServer creates the API server.
func NewServer(st *store.Store, index *knowledge.Index, o *orch.Orchestrator) *Server {
	return &Server{
		store:  st,
		index:  index,
		orch:   o,
		logger: logx.NewLogger("webapi"),
	}
}

// RegisterRoutes attaches all API routes to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)

	mux.HandleFunc("GET /api/projects/{id}/files", s.handleListFiles)
	mux.HandleFunc("GET /api/projects/{id}/files/{path...}", s.handleGetFile)
	mux.HandleFunc("PUT /api/projects/{id}/files/{path...}", s.handlePutFile)
	mux.HandleFunc("GET /api/projects/{id}/history/{path...}", s.handleHistory)

	mux.HandleFunc("POST /api/projects/{id}/preview", s.handlePreview)
	mux.HandleFunc("POST /api/projects/{id}/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/projects/{id}/rollback", s.handleRollback)

	mux.HandleFunc("GET /api/patterns", s.handleListPatterns)
	mux.HandleFunc("POST /api/patterns", s.handleIngestPattern)

	mux.HandleFunc("GET /api/models", s.handleListModels)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// ListenAndServe runs the server until ctx is canceled, then drains with a
// short shutdown grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	}
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

type createProjectRequest struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	project, err := s.store.CreateProject(req.Name, req.Template)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	s.writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.store.GetProject(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProject(r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if _, err := s.store.GetProject(projectID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	files, err := s.store.ListActive(projectID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if files == nil {
		files = []*store.ArtifactVersion{}
	}
	s.writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.store.GetActive(r.PathValue("id"), r.PathValue("path"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, artifact)
}

type putFileRequest struct {
	Content string `json:"content"`
}

func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	var req putFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	artifact, err := s.orch.CommitUserEdit(r.Context(), r.PathValue("id"), r.PathValue("path"), req.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeStoreError(w, err)
		} else {
			s.writeError(w, http.StatusBadRequest, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, artifact)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.History(r.PathValue("id"), r.PathValue("path"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req orch.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	preview, err := s.orch.Preview(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req orch.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := s.orch.Generate(r.Context(), r.PathValue("id"), req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, parser.ErrMalformedOutput), errors.Is(err, llm.ErrTransport):
			s.writeError(w, http.StatusBadGateway, err)
		default:
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	if result.Committed == nil {
		result.Committed = []*store.ArtifactVersion{}
	}
	if result.Rejected == nil {
		result.Rejected = []orch.Rejection{}
	}
	s.writeJSON(w, http.StatusOK, result)
}

type rollbackRequest struct {
	Path    string `json:"path"`
	Version int    `json:"version"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	restored, err := s.orch.Rollback(r.Context(), r.PathValue("id"), req.Path, req.Version)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, restored)
}

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

type ingestPatternRequest struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func (s *Server) handleIngestPattern(w http.ResponseWriter, r *http.Request) {
	var req ingestPatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	pattern, err := s.orch.IngestPattern(r.Context(), req.ID, req.Label, req.Content, req.Tags)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pattern)
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.index.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if patterns == nil {
		patterns = []knowledge.Pattern{}
	}
	s.writeJSON(w, http.StatusOK, patterns)
}

// ---------------------------------------------------------------------------
// Misc
// ---------------------------------------------------------------------------

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"active":    s.orch.ModelName(),
		"available": llm.AvailableModels(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("%d: %v", status, err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeStoreError maps store errors onto status codes: unknown entities are
// 404, everything else is a 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}
