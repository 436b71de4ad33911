// Package app assembles the redaction engine and its stores from
// configuration. Both binaries share it.
package app

import (
	"fmt"

	"github.com/raaihank/snapvault/internal/cache"
	"github.com/raaihank/snapvault/internal/config"
	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/media"
	"github.com/raaihank/snapvault/internal/metrics"
	"github.com/raaihank/snapvault/internal/ocr"
	"github.com/raaihank/snapvault/internal/pipeline"
	"github.com/raaihank/snapvault/internal/privacy"
	"github.com/raaihank/snapvault/internal/recordings"
	"github.com/raaihank/snapvault/internal/region"
	"github.com/raaihank/snapvault/internal/scanner"
	"github.com/raaihank/snapvault/internal/storage"
	"go.uber.org/zap"
)

// NewLogger builds the process logger from the logging section
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}
	return logger.New(loggerConfig)
}

// Engine is a ready-to-run pipeline and the parts it was built from
type Engine struct {
	Coordinator *pipeline.Coordinator
	Media       *media.FFmpeg
	Detector    *privacy.Detector
	Scanner     *scanner.Scanner
	Locator     *storage.Locator
}

// NewEngine wires ffmpeg, tesseract and the privacy detector into a
// pipeline coordinator. mtr may be nil.
func NewEngine(cfg *config.Config, mtr *metrics.Metrics, log *logger.Logger) (*Engine, error) {
	p := cfg.Pipeline

	detector, err := privacy.New(cfg.Privacy, p.MinWordLength, log.WithComponent("privacy"))
	if err != nil {
		return nil, fmt.Errorf("failed to create privacy detector: %w", err)
	}

	ff := media.New(log,
		media.WithBinaries(p.Binaries.FFmpeg, p.Binaries.FFprobe),
		media.WithBlur(media.BlurParams{Radius: p.Blur.Radius, Power: p.Blur.Power}),
		media.WithDenoise(media.DenoiseParams{
			NoiseFloor: p.Denoise.NoiseFloor,
			HighpassHz: p.Denoise.HighpassHz,
			LowpassHz:  p.Denoise.LowpassHz,
			Gain:       p.Denoise.Gain,
		}),
		media.WithTimeout(p.ToolTimeout),
	)

	recognizer := ocr.NewTesseract(
		ocr.WithBinary(p.Binaries.Tesseract),
		ocr.WithLanguage(p.OCRLanguage),
		ocr.WithTimeout(p.ToolTimeout),
	)

	scan := scanner.New(recognizer, detector, scanner.Options{
		Padding:   p.Padding,
		MergeMode: region.ParseMode(p.MergeMode),
		Workers:   p.OCRWorkers,
	}, log)

	locator := storage.NewLocator(cfg.Storage.Root)
	if err := locator.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to prepare storage: %w", err)
	}

	coordinator := pipeline.New(ff, scan, locator, pipeline.Options{FrameRate: p.FrameRate}, mtr, log)

	log.Info("Redaction engine ready",
		zap.String("storage_root", locator.Root),
		zap.Int("frame_rate", p.FrameRate),
		zap.String("merge_mode", string(region.ParseMode(p.MergeMode))),
		zap.Int("ocr_workers", p.OCRWorkers),
		zap.Strings("detectors", detector.GetEnabledRules()),
	)

	return &Engine{
		Coordinator: coordinator,
		Media:       ff,
		Detector:    detector,
		Scanner:     scan,
		Locator:     locator,
	}, nil
}

// Reload applies the settings that may change while running: the enabled
// detectors and the log level
func (e *Engine) Reload(cfg *config.Config, log *logger.Logger) error {
	if err := e.Detector.Configure(cfg.Privacy); err != nil {
		return fmt.Errorf("failed to reconfigure detectors: %w", err)
	}
	if err := log.SetLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("failed to change log level: %w", err)
	}
	log.Info("Configuration reloaded",
		zap.Strings("detectors", e.Detector.GetEnabledRules()),
		zap.String("log_level", cfg.Logging.Level),
	)
	return nil
}

// OpenRecordings returns the Postgres store when the database is enabled,
// otherwise an in-memory store
func OpenRecordings(cfg *config.Config, log *logger.Logger) (recordings.Repository, error) {
	if !cfg.Database.Enabled {
		log.Warn("Database disabled, recordings are kept in memory")
		return recordings.NewMemoryStore(), nil
	}
	return recordings.NewStore(recordings.Config{
		DatabaseURL:     cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, log)
}

// OpenJobStore returns the Redis job cache when enabled, otherwise an
// in-memory one with the same TTL
func OpenJobStore(cfg *config.Config, log *logger.Logger) (cache.JobStore, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryJobCache(cfg.Redis.TTL), nil
	}
	return cache.NewRedisJobCache(cache.Config{
		RedisURL:  cfg.Redis.URL,
		PoolSize:  cfg.Redis.PoolSize,
		TTL:       cfg.Redis.TTL,
		KeyPrefix: cfg.Redis.KeyPrefix,
	}, log)
}
