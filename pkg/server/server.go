// Package server wires the report service HTTP API.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/opsinsight/reportcore/pkg/audit"
	"github.com/opsinsight/reportcore/pkg/authz"
	"github.com/opsinsight/reportcore/pkg/cache"
	"github.com/opsinsight/reportcore/pkg/config"
	"github.com/opsinsight/reportcore/pkg/jobs"
	"github.com/opsinsight/reportcore/pkg/retrieval"
	"github.com/opsinsight/reportcore/pkg/source"
	"github.com/opsinsight/reportcore/pkg/spider"
	"github.com/opsinsight/reportcore/pkg/submission"
)

// Models lists every table the service owns, in migration order.
func Models() []any {
	models := []any{&spider.Task{}, &jobs.AnalysisJob{}, &retrieval.Chunk{}, &audit.Event{}}
	return append(models, source.Models()...)
}

// Server holds the stores behind the API.
type Server struct {
	db          *gorm.DB
	cfg         *config.Config
	logger      *slog.Logger
	jobs        *jobs.JobStore
	tasks       *spider.Store
	audit       *audit.Store
	submissions *submission.Service
	results     *cache.LRU[string, cache.Response]
	startedAt   time.Time
}

// New creates a Server. A nil publisher marks spider tasks enqueued in the
// database.
func New(db *gorm.DB, cfg *config.Config, publisher submission.Publisher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	tasks := spider.NewStore(db)
	jobStore := jobs.NewJobStore(db)
	s := &Server{
		db:          db,
		cfg:         cfg,
		logger:      logger,
		jobs:        jobStore,
		tasks:       tasks,
		submissions: submission.NewService(tasks, jobStore, publisher, logger.With("component", "submission")),
		startedAt:   time.Now(),
	}
	if cfg.Audit.Enabled {
		s.audit = audit.NewStore(db)
	}
	if cfg.HTTP.ResultCacheSize > 0 {
		// Results of succeeded jobs never change, so entries only age out.
		s.results = cache.NewLRU[string, cache.Response](cfg.HTTP.ResultCacheSize, time.Hour)
	}
	return s
}

// AuditStore returns the audit store, or nil when auditing is disabled.
func (s *Server) AuditStore() *audit.Store { return s.audit }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	origins := s.cfg.HTTP.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Remote-User", "X-Remote-Group"},
		ExposedHeaders:   []string{"X-Cache"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(authz.IdentityMiddleware())
	if s.audit != nil {
		r.Use(audit.Middleware(s.audit, &s.cfg.Audit, s.logger.With("component", "audit")))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/amazon", submission.AmazonRouter(s.submissions))
		r.Mount("/spider", submission.SpiderRouter(s.submissions, s.tasks))
		r.Mount("/jobs", jobs.Router(s.jobs, s.results))
		if s.audit != nil {
			r.Mount("/audit", audit.Router(s.audit))
		}
	})

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// readyHandler reports ready once the database answers a ping.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	dbStatus := map[string]string{"status": "up"}
	ready := true
	if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = map[string]string{"status": "down", "error": err.Error()}
		ready = false
	} else if err := sqlDB.PingContext(r.Context()); err != nil {
		dbStatus = map[string]string{"status": "down", "error": err.Error()}
		ready = false
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": map[string]any{"database": dbStatus},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
