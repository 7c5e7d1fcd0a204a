package testutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"prepsync/internal/service"
)

// Request is one request seen by a FakeBackend.
type Request struct {
	Method    string
	Path      string
	Auth      string
	RequestID string
}

// FakeBackend serves the progress API over HTTP, storing records in a
// FakeService.
type FakeBackend struct {
	*httptest.Server
	Store *FakeService

	mu         sync.Mutex
	token      string
	reject     int
	missing404 bool
	requests   []Request
}

// NewFakeBackend starts a backend. Call Close when done.
func NewFakeBackend() *FakeBackend {
	b := &FakeBackend{Store: NewFakeService()}

	r := mux.NewRouter()
	r.Use(b.authenticate)
	r.HandleFunc("/api/weekly-plans/{planId}/task-progress", b.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/task-progress/batch-initialize", b.handleBatch).Methods(http.MethodPost)
	r.HandleFunc("/api/task-progress", b.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/task-progress/{id}", b.handleUpdate).Methods(http.MethodPatch)

	b.Server = httptest.NewServer(r)
	return b
}

// RequireToken makes every request without "Bearer token" fail with 401.
func (b *FakeBackend) RequireToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

// RejectNext makes the next n requests fail with 401.
func (b *FakeBackend) RejectNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reject = n
}

// MissingAs404 makes an empty plan answer 404 instead of noRecords.
func (b *FakeBackend) MissingAs404(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.missing404 = on
}

// Requests returns the requests seen so far.
func (b *FakeBackend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

func (b *FakeBackend) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			Auth:      r.Header.Get("Authorization"),
			RequestID: reqID,
		})
		denied := false
		if b.reject > 0 {
			b.reject--
			denied = true
		} else if b.token != "" && r.Header.Get("Authorization") != "Bearer "+b.token {
			denied = true
		}
		b.mu.Unlock()

		if denied {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *FakeBackend) handleList(w http.ResponseWriter, r *http.Request) {
	planID := mux.Vars(r)["planId"]
	recs, err := b.Store.ListProgress(r.Context(), planID)
	if errors.Is(err, service.ErrMissingRecords) {
		b.mu.Lock()
		as404 := b.missing404
		b.mu.Unlock()
		if as404 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "No progress records found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "noRecords": true, "results": []any{}})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": recs})
}

type wireTask struct {
	TaskTitle     string         `json:"taskTitle"`
	DayNumber     service.Number `json:"dayNumber"`
	WeekNumber    service.Number `json:"weekNumber"`
	Skill         string         `json:"skill"`
	InitialStatus service.Status `json:"initialStatus"`
	WeeklyPlanID  string         `json:"weeklyPlanId"`
}

func (t wireTask) task() service.Task {
	return service.Task{
		Title:      t.TaskTitle,
		DayNumber:  int(t.DayNumber),
		WeekNumber: int(t.WeekNumber),
		Skill:      t.Skill,
	}
}

func (b *FakeBackend) handleBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WeeklyPlanID string         `json:"weeklyPlanId"`
		WeekNumber   service.Number `json:"weekNumber"`
		Tasks        []wireTask     `json:"tasks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.WeeklyPlanID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}

	initial := service.StatusNotStarted
	tasks := make([]service.Task, 0, len(body.Tasks))
	for _, t := range body.Tasks {
		tasks = append(tasks, t.task())
		if t.InitialStatus.Valid() {
			initial = t.InitialStatus
		}
	}
	recs, err := b.Store.BatchInitialize(r.Context(), body.WeeklyPlanID, int(body.WeekNumber), tasks, initial)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": recs})
}

func (b *FakeBackend) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		wireTask
		ProgressData json.RawMessage `json:"progressData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.WeeklyPlanID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	initial := service.StatusNotStarted
	if body.InitialStatus.Valid() {
		initial = body.InitialStatus
	}
	rec, err := b.Store.CreateRecord(r.Context(), body.WeeklyPlanID, body.task(), initial, body.ProgressData)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "result": rec})
}

func (b *FakeBackend) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var update service.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	if update.Status != nil && !update.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}
	rec, err := b.Store.UpdateRecord(r.Context(), mux.Vars(r)["id"], update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeError(w http.ResponseWriter, err error) {
	status := service.StatusOf(err)
	if status < 400 {
		status = http.StatusInternalServerError
	}
	var ae *service.APIError
	msg := err.Error()
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
