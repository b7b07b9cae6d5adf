// Package control implements the Control Surface (C9): a thin REST and
// WebSocket layer over the Artifact Store, Task Queue, and Resilience
// Monitor. No handler here mutates entity state directly — every write
// delegates to storage/taskqueue/resilience, and every handler returns a
// structured, taxonomy-tagged error body rather than a stack trace.
// Built on github.com/go-chi/chi/v5, github.com/go-chi/cors, and
// github.com/gorilla/websocket for the push channel.
package control

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hakim/reconcore/internal/resilience"
	"github.com/hakim/reconcore/internal/storage"
	"github.com/hakim/reconcore/internal/taskqueue"
)

// Server wires the HTTP surface to its three backing components.
type Server struct {
	store     *storage.Store
	queue     *taskqueue.Queue
	resilient *resilience.Monitor
	log       *zap.SugaredLogger
	hub       *hub

	router chi.Router
}

// New builds the Control Surface router. resilient may be nil if the
// Resilience Monitor was disabled at startup — the system pause/resume
// endpoints return 503 in that case.
func New(store *storage.Store, queue *taskqueue.Queue, resilient *resilience.Monitor, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		store:     store,
		queue:     queue,
		resilient: resilient,
		log:       log,
		hub:       newHub(),
	}
	s.router = s.routes()
	go s.hub.run()
	return s
}

// ServeHTTP satisfies http.Handler, so a caller can hand *Server straight
// to http.Server.Handler or httptest.NewServer.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/targets", func(r chi.Router) {
		r.Post("/", s.createTarget)
		r.Get("/", s.listTargets)
		r.Get("/{id}", s.getTarget)
	})

	r.Route("/scans", func(r chi.Router) {
		r.Post("/", s.createScan)
		r.Get("/{id}", s.getScan)
		r.Post("/{id}/pause", s.pauseScan)
		r.Post("/{id}/resume", s.resumeScan)
		r.Post("/{id}/stop", s.stopScan)
		r.Get("/{id}/subdomains", s.listSubdomains)
		r.Get("/{id}/vulnerabilities", s.listVulnerabilities)
	})

	r.Route("/system", func(r chi.Router) {
		r.Get("/status", s.systemStatus)
		r.Post("/pause", s.systemPause)
		r.Post("/resume", s.systemResume)
	})

	r.Get("/events", s.events)

	return r
}
