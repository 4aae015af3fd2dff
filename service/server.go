package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmcode/reagent/mcp"
	"github.com/dmcode/reagent/skills"
)

// Server is the HTTP front-end: a thin shell over the session registry with
// no reasoning logic of its own.
type Server struct {
	registry *Registry
	factory  AgentFactory
	skillMgr *skills.Manager
	mcpMgr   *mcp.Manager
}

// NewServer wires the front-end. skillMgr and mcpMgr may be nil; the
// corresponding endpoints then report empty lists.
func NewServer(registry *Registry, factory AgentFactory, skillMgr *skills.Manager, mcpMgr *mcp.Manager) *Server {
	return &Server{registry: registry, factory: factory, skillMgr: skillMgr, mcpMgr: mcpMgr}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/tasks", s.handleCreateTask)
	r.Get("/tasks", s.handleListTasks)
	r.Get("/tasks/{id}", s.handleGetTask)
	r.Get("/tasks/{id}/events", s.handleTaskEvents)
	r.Get("/skills", s.handleListSkills)
	r.Get("/servers", s.handleListServers)
	return r
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Task string `json:"task"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Task == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	session := s.registry.StartTask(r.Context(), body.Task, s.factory)
	slog.Info("task started", "session", session.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": session.ID})
}

type sessionView struct {
	ID          string `json:"id"`
	Task        string `json:"task"`
	Running     bool   `json:"running"`
	Steps       int    `json:"steps"`
	FinalAnswer string `json:"final_answer,omitempty"`
	Error       string `json:"error,omitempty"`
}

func viewOf(session *Session) sessionView {
	view := sessionView{
		ID:      session.ID,
		Task:    session.Task,
		Running: session.IsRunning(),
	}
	if result, err, done := session.Result(); done {
		if err != nil {
			view.Error = err.Error()
		} else {
			view.FinalAnswer = result.FinalAnswer
			view.Steps = len(result.Steps)
		}
	}
	return view
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	views := make([]sessionView, len(sessions))
	for i, session := range sessions {
		views[i] = viewOf(session)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	session, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

// handleTaskEvents streams session events as server-sent events until the
// final event or the consumer's idle budget runs out.
func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	err := session.Stream(r.Context(), func(e Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		slog.Debug("event stream ended", "session", session.ID, "error", err)
	}
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	views := []skills.Metadata{}
	if s.skillMgr != nil {
		for _, skill := range s.skillMgr.List() {
			views = append(views, skill.Metadata())
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	statuses := []mcp.ServerStatus{}
	if s.mcpMgr != nil {
		statuses = s.mcpMgr.Servers()
	}
	writeJSON(w, http.StatusOK, statuses)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
