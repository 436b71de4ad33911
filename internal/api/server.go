package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/snapvault/internal/cache"
	"github.com/raaihank/snapvault/internal/config"
	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/media"
	"github.com/raaihank/snapvault/internal/metrics"
	"github.com/raaihank/snapvault/internal/pipeline"
	"github.com/raaihank/snapvault/internal/progress"
	"github.com/raaihank/snapvault/internal/recordings"
	"github.com/raaihank/snapvault/internal/region"
	"github.com/raaihank/snapvault/internal/security"
	"github.com/raaihank/snapvault/internal/storage"
	"github.com/raaihank/snapvault/internal/web"
	"github.com/raaihank/snapvault/internal/websocket"
	"go.uber.org/zap"
)

const version = "0.1.0"

// Processor runs the redaction pipeline for one recording
type Processor interface {
	RunWithID(ctx context.Context, runID, rawPath string, manual []region.Region, sink progress.Sink) (pipeline.Result, error)
}

// Prober reads the dimensions of an uploaded recording
type Prober interface {
	Probe(ctx context.Context, path string) (media.Probe, error)
}

// RuleLister reports the enabled privacy detectors
type RuleLister interface {
	GetEnabledRules() []string
}

// Deps are the collaborators the server routes requests to. Metrics and
// Limiter may be nil.
type Deps struct {
	Pipeline   Processor
	Prober     Prober
	Locator    *storage.Locator
	Hub        *websocket.Hub
	Jobs       *cache.Tracker
	Recordings recordings.Repository
	Limiter    *security.RateLimiter
	Metrics    *metrics.Metrics
	Rules      RuleLister
}

// Server is the SnapVault HTTP API
type Server struct {
	config *config.Config
	deps   Deps
	logger *logger.Logger
	router *mux.Router
	server *http.Server
}

// New creates the API server
func New(cfg *config.Config, deps Deps, log *logger.Logger) (*Server, error) {
	if deps.Pipeline == nil || deps.Locator == nil || deps.Hub == nil || deps.Jobs == nil || deps.Recordings == nil {
		return nil, errors.New("api: pipeline, locator, hub, jobs and recordings are required")
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: log.WithComponent("api"),
		router: mux.NewRouter(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	if s.deps.Metrics != nil && s.config.Metrics.Enabled {
		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	if s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.deps.Hub.HandleWebSocket).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/processed/{name}", web.ServeProcessed(s.deps.Locator)).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/process", s.handleProcess).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", s.handleJob).Methods(http.MethodGet)
	api.HandleFunc("/recordings", s.handleRecordings).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/snaps/upload", s.handleSnapUpload).Methods(http.MethodPost)
	api.PathPrefix("/").HandlerFunc(s.handleOptions).Methods(http.MethodOptions)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Starting SnapVault API server",
		zap.Int("port", s.config.Server.Port),
		zap.String("storage_root", s.deps.Locator.Root),
		zap.Bool("rate_limit", s.config.RateLimit.Enabled),
	)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping SnapVault API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	var rules []string
	if s.deps.Rules != nil {
		rules = s.deps.Rules.GetEnabledRules()
	}
	jobs, err := s.deps.Jobs.Stats(r.Context())
	if err != nil {
		s.logger.Warn("Job cache stats unavailable", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_cache":         jobs,
		"name":              "snapvault",
		"version":           version,
		"privacy_enabled":   s.config.Privacy.Enabled,
		"detectors":         rules,
		"merge_mode":        s.config.Pipeline.MergeMode,
		"frame_rate":        s.config.Pipeline.FrameRate,
		"websocket_clients": s.deps.Hub.GetStats().ActiveConnections,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
