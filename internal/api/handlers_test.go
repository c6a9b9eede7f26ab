package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sheetmail/sheetmail/internal/config"
	"github.com/sheetmail/sheetmail/internal/history"
	"github.com/sheetmail/sheetmail/internal/mailer"
	"github.com/sheetmail/sheetmail/internal/pipeline"
)

// mockMailer implements Mailer for testing. Execute blocks until
// release is closed so tests can observe the in-flight state.
type mockMailer struct {
	release  chan struct{}
	started  chan struct{}
	executed chan mailer.RunRequest
	outcomes []pipeline.Outcome
	err      error
}

func newMockMailer() *mockMailer {
	return &mockMailer{
		release:  make(chan struct{}),
		started:  make(chan struct{}),
		executed: make(chan mailer.RunRequest, 1),
	}
}

func (m *mockMailer) Execute(ctx context.Context, req mailer.RunRequest) (*history.Run, error) {
	for _, out := range m.outcomes {
		if req.Progress != nil {
			req.Progress(out)
		}
	}
	close(m.started)
	<-m.release
	m.executed <- req
	if m.err != nil {
		return nil, m.err
	}
	return &history.Run{ID: req.ID, Outcomes: m.outcomes}, nil
}

func (m *mockMailer) Preview(ctx context.Context, req mailer.RunRequest) ([]pipeline.Outcome, error) {
	return m.outcomes, m.err
}

func setupTestServer(t *testing.T, apiKey string) (*Server, *mockMailer, *history.Store) {
	t.Helper()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m := newMockMailer()
	cfg := &config.APIConfig{
		ListenAddr: ":8080",
		APIKey:     apiKey,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(m, store, cfg, logger), m, store
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	server, _, _ := setupTestServer(t, "secret")

	tests := []struct {
		name       string
		authHeader string
		apiKey     string
		wantStatus int
	}{
		{"no auth", "", "", http.StatusUnauthorized},
		{"wrong key", "Bearer wrong", "", http.StatusUnauthorized},
		{"bearer token", "Bearer secret", "", http.StatusOK},
		{"x-api-key header", "", "secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/runs", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			w := httptest.NewRecorder()
			server.router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestStartRunValidation(t *testing.T) {
	server, _, _ := setupTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{not json"},
		{"missing sheet_path", `{"subject":"Hi","body":"Hello"}`},
		{"missing templates", `{"sheet_path":"/tmp/list.xlsx"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			server.router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestStartRunConflict(t *testing.T) {
	server, m, _ := setupTestServer(t, "")

	body := `{"sheet_path":"/tmp/list.xlsx","subject":"Hi","body":"Hello {{name}}"}`
	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("first run status = %d, want %d", w.Code, http.StatusAccepted)
	}
	var started StartRunResponse
	if err := json.NewDecoder(w.Body).Decode(&started); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if started.ID == "" {
		t.Error("empty run ID")
	}

	// Second start while the first is still in flight
	req = httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(body))
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("second run status = %d, want %d", w.Code, http.StatusConflict)
	}

	close(m.release)
	got := <-m.executed
	if got.ID != started.ID {
		t.Errorf("executed run ID = %q, want %q", got.ID, started.ID)
	}

	// The guard clears once the run finishes
	deadline := time.After(2 * time.Second)
	for {
		server.mu.Lock()
		idle := server.active == nil
		server.mu.Unlock()
		if idle {
			break
		}
		select {
		case <-deadline:
			t.Fatal("active run never cleared")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestGetRunInFlight(t *testing.T) {
	server, m, _ := setupTestServer(t, "")
	m.outcomes = []pipeline.Outcome{
		{Name: "Acme", Email: "info@acme.example", RowNumber: 1, Status: pipeline.StatusOK},
	}

	body := `{"sheet_path":"/tmp/list.xlsx","subject":"Hi","body":"Hello"}`
	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	var started StartRunResponse
	if err := json.NewDecoder(w.Body).Decode(&started); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	// Progress fires before Execute blocks, so the outcome is visible
	// while the run is still active.
	<-m.started
	req = httptest.NewRequest("GET", "/api/v1/runs/"+started.ID, nil)
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp RunResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "running" {
		t.Errorf("run status = %q, want running", resp.Status)
	}
	if len(resp.Outcomes) != 1 || resp.Outcomes[0].Email != "info@acme.example" {
		t.Errorf("unexpected outcomes: %+v", resp.Outcomes)
	}

	close(m.release)
	<-m.executed
}

func TestGetRunFromHistory(t *testing.T) {
	server, _, store := setupTestServer(t, "")

	run := &history.Run{
		ID:        "run-1",
		Account:   "main",
		StartedAt: time.Now().Add(-time.Minute),
		Outcomes: []pipeline.Outcome{
			{Name: "Acme", Status: pipeline.StatusOK},
			{Name: "Globex", Status: pipeline.StatusFail, Error: "connection refused"},
		},
	}
	if err := store.Save(context.Background(), run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/runs/run-1", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp RunResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("run status = %q, want completed", resp.Status)
	}
	if resp.Stats.Sent != 1 || resp.Stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 sent, 1 failed", resp.Stats)
	}
}

func TestGetRunNotFound(t *testing.T) {
	server, _, _ := setupTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/v1/runs/missing", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListRuns(t *testing.T) {
	server, _, store := setupTestServer(t, "")

	for i, id := range []string{"run-1", "run-2"} {
		run := &history.Run{
			ID:        id,
			StartedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := store.Save(context.Background(), run); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp []RunSummary
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("got %d runs, want 2", len(resp))
	}
	// Newest first
	if resp[0].ID != "run-2" {
		t.Errorf("first run = %q, want run-2", resp[0].ID)
	}
}

func TestGetReportNotFound(t *testing.T) {
	server, _, store := setupTestServer(t, "")

	// Run exists but has no report
	run := &history.Run{ID: "run-1", StartedAt: time.Now()}
	if err := store.Save(context.Background(), run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/runs/run-1/report", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeleteRun(t *testing.T) {
	server, _, store := setupTestServer(t, "")

	run := &history.Run{ID: "run-1", StartedAt: time.Now()}
	if err := store.Save(context.Background(), run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/api/v1/runs/run-1", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	got, err := store.Get(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("run still present after delete")
	}
}
