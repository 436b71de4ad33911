package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/snapvault/internal/api"
	"github.com/raaihank/snapvault/internal/app"
	"github.com/raaihank/snapvault/internal/cache"
	"github.com/raaihank/snapvault/internal/config"
	"github.com/raaihank/snapvault/internal/metrics"
	"github.com/raaihank/snapvault/internal/security"
	"github.com/raaihank/snapvault/internal/tracing"
	"github.com/raaihank/snapvault/internal/websocket"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the health endpoint at this address (e.g. localhost:3001) and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("SnapVault %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting SnapVault",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName)
		if err != nil {
			log.Warn("Tracing disabled, exporter setup failed", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				tp.Shutdown(shutdownCtx)
			}()
		}
	}

	mtr := metrics.New()

	engine, err := app.NewEngine(cfg, mtr, log)
	if err != nil {
		log.Fatal("Failed to build redaction engine", zap.Error(err))
	}

	if err := config.Watch(func(next *config.Config) {
		if err := engine.Reload(next, log); err != nil {
			log.Error("Ignoring configuration change", zap.Error(err))
		}
	}, func(err error) {
		log.Error("Configuration reload failed", zap.Error(err))
	}); err != nil {
		log.Warn("Configuration hot reload unavailable", zap.Error(err))
	}

	repo, err := app.OpenRecordings(cfg, log)
	if err != nil {
		log.Fatal("Failed to open recordings store", zap.Error(err))
	}
	defer repo.Close()

	jobStore, err := app.OpenJobStore(cfg, log)
	if err != nil {
		log.Fatal("Failed to open job cache", zap.Error(err))
	}
	defer jobStore.Close()

	tracker := cache.NewTracker(jobStore, 0, log)
	go tracker.Run(ctx)

	hub := websocket.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	limiter := security.NewRateLimiter(cfg.RateLimit)
	limiter.StartCleanupRoutine(ctx)

	server, err := api.New(cfg, api.Deps{
		Pipeline:   engine.Coordinator,
		Prober:     engine.Media,
		Locator:    engine.Locator,
		Hub:        hub,
		Jobs:       tracker,
		Recordings: repo,
		Limiter:    limiter,
		Metrics:    mtr,
		Rules:      engine.Detector,
	}, log)
	if err != nil {
		log.Fatal("Failed to create API server", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// In-flight /api/process calls may be mid-run; give them time to finish.
		shutdownCtx, done := context.WithTimeout(context.Background(), 60*time.Second)
		defer done()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}
		log.Info("Server shutdown complete")
	}
}

// performHealthCheck probes a running server and exits with its verdict
func performHealthCheck(addr string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
