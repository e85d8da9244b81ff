// Package apitest provides an in-memory task server for tests and local
// development. It speaks the same REST API as the real server.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldops/fieldtask/internal/task"
)

// Server is a fake task server listening on a local port.
type Server struct {
	*httptest.Server

	// Token, when set, is the only bearer credential accepted.
	Token string

	mu         sync.Mutex
	tasks      []task.Task
	nextID     int
	down       bool
	failures   int
	failStatus int
	requests   []string
	now        func() time.Time
}

// NewServer starts a server holding tasks. Close it when done.
func NewServer(tasks ...task.Task) *Server {
	s := &Server{
		tasks:  task.CloneAll(tasks),
		nextID: 1000,
		now:    time.Now,
	}
	s.Server = httptest.NewServer(s.Router())
	return s
}

// Router returns the chi router serving the API.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.gate)
		r.Get("/tasks", s.listTasks)
		r.Post("/tasks", s.createTask)
		r.Put("/tasks/{id}", s.updateTask)
		r.Delete("/tasks/{id}", s.deleteTask)
		r.Post("/tasks/{id}/notes", s.addNote)
	})
	return r
}

// Tasks returns a copy of the server's collection.
func (s *Server) Tasks() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return task.CloneAll(s.tasks)
}

// SetDown makes every request, including /health, answer 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// FailNext makes the next n API requests answer status.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.failStatus = status
}

// Requests returns "METHOD path" for every API request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()

	if down {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// gate records the request and applies auth and injected failures.
func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		down := s.down
		fail := 0
		if s.failures > 0 {
			s.failures--
			fail = s.failStatus
		}
		token := s.Token
		s.mu.Unlock()

		switch {
		case down:
			writeError(w, http.StatusServiceUnavailable, "server unavailable")
		case fail != 0:
			writeError(w, fail, "injected failure")
		case token != "" && r.Header.Get("Authorization") != "Bearer "+token:
			writeError(w, http.StatusUnauthorized, "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Tasks())
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.mu.Lock()
	now := s.now()
	t.ID = strconv.Itoa(s.nextID)
	s.nextID++
	t.SetDefaults(now)
	for i := range t.Notes {
		t.Notes[i].TaskID = t.ID
	}
	if err := t.Validate(); err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.tasks = append(s.tasks, t.Clone())
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var u task.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(chi.URLParam(r, "id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	u.Apply(&s.tasks[i])
	s.tasks[i].Touch(s.now())
	writeJSON(w, http.StatusOK, s.tasks[i])
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(chi.URLParam(r, "id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := chi.URLParam(r, "id")
	i := s.indexLocked(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	now := s.now()
	note := task.Note{
		ID:        "note-" + strconv.Itoa(s.nextID),
		TaskID:    id,
		Content:   req.Content,
		CreatedAt: now,
	}
	s.nextID++
	s.tasks[i].Notes = append(s.tasks[i].Notes, note)
	s.tasks[i].Touch(now)
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) indexLocked(id string) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
