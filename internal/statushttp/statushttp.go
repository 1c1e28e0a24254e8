// Package statushttp is a tiny human-facing HTTP status surface mirroring
// the teacher's internal/server.IndexServer: a handler per route, each
// writing a JSON-encoded status struct. This mirrors IndexServer's
// ServeMux-and-handleX shape but is built on chi for routing and
// go-chi/cors for a permissive dashboard-friendly CORS policy, since this
// surface is for operators/dashboards, not agent tool calls (SPEC_FULL §C).
package statushttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cxxbridge/cxxbridge/internal/logging"
	"github.com/cxxbridge/cxxbridge/internal/session"
)

// SessionLister is the subset of *session.WorkspaceSession this surface
// needs, so tests can substitute a stub.
type SessionLister interface {
	ListKnown() []string
	Lookup(buildDir string) (*session.ComponentSession, bool)
}

// Server serves the status surface.
type Server struct {
	router chi.Router
	ws     SessionLister
}

// New builds a Server backed by ws.
func New(ws SessionLister) *Server {
	s := &Server{ws: ws}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/status", s.handleListStatus)
	r.Get("/status/{buildDir}", s.handleOneStatus)
	r.Get("/healthz", s.handleHealthz)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// knownSessionsView lists every build directory this server knows about,
// for a dashboard landing page.
type knownSessionsView struct {
	BuildDirs []string `json:"buildDirs"`
}

func (s *Server) handleListStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(knownSessionsView{BuildDirs: s.ws.ListKnown()})
}

func (s *Server) handleOneStatus(w http.ResponseWriter, r *http.Request) {
	buildDir := chi.URLParam(r, "buildDir")
	cs, ok := s.ws.Lookup(buildDir)
	if !ok {
		http.Error(w, "unknown build directory", http.StatusNotFound)
		return
	}

	view := cs.IndexStatus(time.Now())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		logging.ForComponent("statushttp").Error("encode status", "buildDir", buildDir, "err", err)
	}
}
