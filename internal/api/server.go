package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mucfocus/mucfocus/internal/api/middleware"
	"github.com/mucfocus/mucfocus/internal/bridge"
	"github.com/mucfocus/mucfocus/internal/database"
	"github.com/mucfocus/mucfocus/internal/focus"
)

// ConferenceDirectory is the view of live conference state served by
// the API. Implemented by the focus controller.
type ConferenceDirectory interface {
	Conferences() []focus.ConferenceSummary
	Conference(room string) (*focus.ConferenceDetail, bool)
}

// BridgeTable is the bridge selector view served by the API.
type BridgeTable interface {
	Snapshot() []bridge.Info
	Counts() (known, live int)
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router      *chi.Mux
	conferences ConferenceDirectory
	bridges     BridgeTable
	records     database.ConferenceRecordRepository
	metrics     http.Handler
	limiter     *middleware.IPRateLimiter
	started     time.Time
}

// NewServer creates the HTTP handler with all routes mounted. The
// metrics handler and rate limiter may be nil; the corresponding
// surface is then not mounted.
func NewServer(
	conferences ConferenceDirectory,
	bridges BridgeTable,
	records database.ConferenceRecordRepository,
	metrics http.Handler,
	limiter *middleware.IPRateLimiter,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		conferences: conferences,
		bridges:     bridges,
		records:     records,
		metrics:     metrics,
		limiter:     limiter,
		started:     time.Now(),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	if s.limiter != nil {
		r.Use(middleware.RateLimit(s.limiter))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/conferences", s.handleListConferences)
		r.Get("/conferences/{room}", s.handleGetConference)

		r.Get("/bridges", s.handleListBridges)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", s.handleListRecords)
			r.Get("/{id}", s.handleGetRecord)
		})
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	slog.Info("api routes mounted")
}

// handleHealth returns basic health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}
