package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sheetmail/sheetmail/internal/history"
	"github.com/sheetmail/sheetmail/internal/mailer"
	"github.com/sheetmail/sheetmail/internal/pipeline"
)

// activeRun tracks the single in-flight run so status requests can see
// outcomes as they are recorded.
type activeRun struct {
	id        string
	account   string
	startedAt time.Time
	cancel    context.CancelFunc

	mu       sync.Mutex
	outcomes []pipeline.Outcome
}

func (ar *activeRun) append(out pipeline.Outcome) {
	ar.mu.Lock()
	ar.outcomes = append(ar.outcomes, out)
	ar.mu.Unlock()
}

func (ar *activeRun) snapshot() []pipeline.Outcome {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	out := make([]pipeline.Outcome, len(ar.outcomes))
	copy(out, ar.outcomes)
	return out
}

// StartRunResponse is the response for POST /runs
type StartRunResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RunResponse is the response for GET /runs/{id}
type RunResponse struct {
	ID         string             `json:"id"`
	Account    string             `json:"account"`
	Status     string             `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at,omitzero"`
	Stats      history.Stats      `json:"stats"`
	Outcomes   []pipeline.Outcome `json:"outcomes"`
	ReportPath string             `json:"report_path,omitempty"`
}

// RunSummary is one entry in the GET /runs listing
type RunSummary struct {
	ID         string        `json:"id"`
	Account    string        `json:"account"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stats      history.Stats `json:"stats"`
}

// PreviewResponse is the response for POST /preview
type PreviewResponse struct {
	Outcomes []pipeline.Outcome `json:"outcomes"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	ActiveRun string `json:"active_run,omitempty"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleStartRun handles POST /api/v1/runs
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req mailer.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SheetPath == "" {
		s.sendError(w, http.StatusBadRequest, "sheet_path is required")
		return
	}
	if req.Subject == "" && req.Body == "" {
		s.sendError(w, http.StatusBadRequest, "subject or body is required")
		return
	}

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		s.sendError(w, http.StatusConflict, "A run is already in progress")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{
		id:        uuid.New().String(),
		account:   req.Account,
		startedAt: time.Now(),
		cancel:    cancel,
	}
	s.active = ar
	s.mu.Unlock()

	req.ID = ar.id
	req.Progress = ar.append

	go func() {
		defer cancel()

		_, err := s.mailer.Execute(ctx, req)
		if err != nil {
			s.logger.Error("mailing run failed", "run_id", ar.id, "error", err)
		}

		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
	}()

	s.logger.Info("mailing run started via API", "run_id", ar.id, "sheet", req.SheetPath)

	s.sendJSON(w, http.StatusAccepted, StartRunResponse{
		ID:     ar.id,
		Status: "running",
	})
}

// handlePreview handles POST /api/v1/preview
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req mailer.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SheetPath == "" {
		s.sendError(w, http.StatusBadRequest, "sheet_path is required")
		return
	}

	outcomes, err := s.mailer.Preview(r.Context(), req)
	if err != nil {
		s.sendError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, PreviewResponse{Outcomes: outcomes})
}

// handleGetRun handles GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	ar := s.active
	s.mu.Unlock()

	if ar != nil && ar.id == id {
		run := &history.Run{Outcomes: ar.snapshot()}
		s.sendJSON(w, http.StatusOK, RunResponse{
			ID:        ar.id,
			Account:   ar.account,
			Status:    "running",
			StartedAt: ar.startedAt,
			Stats:     run.Stats(),
			Outcomes:  run.Outcomes,
		})
		return
	}

	run, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get run", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	if run == nil {
		s.sendError(w, http.StatusNotFound, "Run not found")
		return
	}

	s.sendJSON(w, http.StatusOK, RunResponse{
		ID:         run.ID,
		Account:    run.Account,
		Status:     "completed",
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Stats:      run.Stats(),
		Outcomes:   run.Outcomes,
		ReportPath: run.ReportPath,
	})
}

// handleListRuns handles GET /api/v1/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	summaries := make([]RunSummary, len(runs))
	for i, run := range runs {
		summaries[i] = RunSummary{
			ID:         run.ID,
			Account:    run.Account,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Stats:      run.Stats(),
		}
	}

	s.sendJSON(w, http.StatusOK, summaries)
}

// handleGetReport handles GET /api/v1/runs/{id}/report
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get run", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	if run == nil || run.ReportPath == "" {
		s.sendError(w, http.StatusNotFound, "Report not found")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, run.ReportPath)
}

// handleDeleteRun handles DELETE /api/v1/runs/{id}
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.logger.Error("failed to delete run", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete run")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: "0.1.0",
		Uptime:  time.Since(s.startTime).String(),
	}

	s.mu.Lock()
	if s.active != nil {
		resp.ActiveRun = s.active.id
	}
	s.mu.Unlock()

	s.sendJSON(w, http.StatusOK, resp)
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, ErrorResponse{Error: msg})
}
