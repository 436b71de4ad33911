// Package pipeline runs a recording through sampling, scanning, blurring
// and audio sanitization, reporting checkpoints as it goes and leaving no
// intermediate files behind.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/media"
	"github.com/raaihank/snapvault/internal/metrics"
	"github.com/raaihank/snapvault/internal/privacy"
	"github.com/raaihank/snapvault/internal/progress"
	"github.com/raaihank/snapvault/internal/region"
	"github.com/raaihank/snapvault/internal/scanner"
	"github.com/raaihank/snapvault/internal/storage"
	"github.com/raaihank/snapvault/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FrameScanner turns sampled frames into merged blur regions.
type FrameScanner interface {
	ScanFrames(ctx context.Context, framePaths []string) scanner.Report
}

// Options tune a Coordinator.
type Options struct {
	FrameRate int
}

// Result describes a finished run. The file at OutputPath is always usable.
type Result struct {
	RunID      string `json:"runId"`
	OutputPath string `json:"outputPath"`
	// DetectionCount counts merged AI regions. Manual regions are blurred
	// but not counted.
	DetectionCount int               `json:"detectionCount"`
	ManualRegions  int               `json:"manualRegions"`
	Findings       []privacy.Finding `json:"findings,omitempty"`
	Frames         int               `json:"frames"`
	Width          int               `json:"width,omitempty"`
	Height         int               `json:"height,omitempty"`
	// DurationSeconds is the probed length of the source, zero if unknown.
	DurationSeconds float64       `json:"durationSeconds"`
	Degradations    []Degradation `json:"degradations,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Coordinator sequences the pipeline stages for one recording at a time.
// Separate calls to Run share no state and may run concurrently.
type Coordinator struct {
	media   media.Transformer
	scanner FrameScanner
	locator *storage.Locator
	opts    Options
	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *logger.Logger
}

// New creates a coordinator. metrics may be nil.
func New(m media.Transformer, s FrameScanner, locator *storage.Locator, opts Options, mtr *metrics.Metrics, log *logger.Logger) *Coordinator {
	if opts.FrameRate < 1 {
		opts.FrameRate = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Coordinator{
		media:   m,
		scanner: s,
		locator: locator,
		opts:    opts,
		metrics: mtr,
		tracer:  tracing.Tracer(),
		logger:  log.WithComponent("pipeline"),
	}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Run processes rawPath under a new run ID.
func (c *Coordinator) Run(ctx context.Context, rawPath string, manual []region.Region, sink progress.Sink) (Result, error) {
	return c.RunWithID(ctx, NewRunID(), rawPath, manual, sink)
}

// run carries the per-run state shared between stages.
type run struct {
	id       string
	log      *logger.Logger
	sink     *progress.Monotonic
	arena    *storage.Arena
	output   string
	staged   string
	result   Result
	released bool
}

func (r *run) report(percent int, format string, args ...any) {
	r.sink.Report(progress.Event{Message: fmt.Sprintf(format, args...), Percent: percent})
}

// RunWithID processes rawPath. manual regions must already be in source
// pixel space. The result is staged in the run arena and moved to the output
// path only on success, so a failed run writes nothing there and leaves any
// earlier output of the same recording in place. On error the arena is gone.
func (c *Coordinator) RunWithID(ctx context.Context, runID, rawPath string, manual []region.Region, sink progress.Sink) (res Result, err error) {
	started := time.Now()
	ctx, span := c.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("recording", filepath.Base(rawPath)),
		attribute.Int("manual_regions", len(manual)),
	))
	defer span.End()

	r := &run{
		id:   runID,
		log:  c.logger.WithRunID(runID),
		sink: progress.NewMonotonic(sink),
	}
	r.sink.OnPanic = func(v any) {
		r.log.Warn("Progress sink panicked", zap.Any("panic", v))
	}
	r.result = Result{RunID: runID, ManualRegions: len(manual)}

	c.metrics.RunStarted()
	defer func() {
		if err != nil {
			c.abort(r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.metrics.RunFinished("failed")
			r.log.Error("Pipeline run failed", zap.Error(err))
			return
		}
		c.metrics.RunFinished("success")
	}()

	if err := c.setup(r, rawPath); err != nil {
		return Result{}, err
	}

	r.log.Info("Pipeline run started",
		zap.String("input", rawPath),
		zap.String("output", r.output),
		zap.Int("manual_regions", len(manual)),
	)

	probe := c.probe(ctx, r, rawPath)

	frames := c.sample(ctx, r, rawPath, probe)
	aiRegions := c.scan(ctx, r, frames)
	regions := c.combine(r, aiRegions, manual)

	if err := c.composite(ctx, r, rawPath, regions); err != nil {
		return Result{}, err
	}
	c.sanitize(ctx, r, probe)

	r.report(95, "Finalizing...")
	if err := c.publish(r); err != nil {
		return Result{}, err
	}
	c.cleanup(ctx, r)
	r.report(100, "Processing complete!")

	r.result.OutputPath = r.output
	r.result.Elapsed = time.Since(started)
	span.SetAttributes(attribute.Int("detections", r.result.DetectionCount))

	r.log.Info("Pipeline run complete",
		zap.String("output", r.output),
		zap.Int("detections", r.result.DetectionCount),
		zap.Int("degradations", len(r.result.Degradations)),
		zap.Duration("elapsed", r.result.Elapsed),
	)
	return r.result, nil
}

func (c *Coordinator) setup(r *run, rawPath string) error {
	info, err := os.Stat(rawPath)
	if err != nil {
		return &RunError{Stage: StageSetup, RunID: r.id, Err: fmt.Errorf("%w: %w", ErrInvalidInput, err)}
	}
	if info.IsDir() {
		return &RunError{Stage: StageSetup, RunID: r.id, Err: fmt.Errorf("%w: %s is a directory", ErrInvalidInput, rawPath)}
	}

	output, err := c.locator.ProcessedPath(filepath.Base(rawPath))
	if err != nil {
		return &RunError{Stage: StageSetup, RunID: r.id, Err: fmt.Errorf("%w: %w", ErrInvalidInput, err)}
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return &RunError{Stage: StageSetup, RunID: r.id, Err: fmt.Errorf("create output dir: %w", err)}
	}

	arena, err := c.locator.NewRunArena(r.id)
	if err != nil {
		return &RunError{Stage: StageSetup, RunID: r.id, Err: err}
	}
	r.output = output
	r.arena = arena
	return nil
}

// probe is best effort: it feeds region clamping and the recorded duration.
func (c *Coordinator) probe(ctx context.Context, r *run, rawPath string) *media.Probe {
	p, err := c.media.Probe(ctx, rawPath)
	if err != nil {
		r.log.Warn("Probe failed, regions will not be clamped", zap.Error(err))
		return nil
	}
	r.result.Width, r.result.Height = p.Dimensions()
	r.result.DurationSeconds = p.DurationSeconds()
	return &p
}

func (c *Coordinator) sample(ctx context.Context, r *run, rawPath string, probe *media.Probe) []string {
	ctx, span := c.tracer.Start(ctx, "pipeline.sampling")
	defer span.End()
	defer c.timeStage(StageSampling, time.Now())

	r.report(10, "Extracting video frames for AI analysis...")

	if probe != nil && !probe.HasVideo() {
		c.degrade(r, ExtractionDegraded, "no video stream")
		r.report(25, "Frame extraction skipped (file may be audio-only)")
		return nil
	}

	frames, err := c.media.ExtractFrames(ctx, rawPath, r.arena.FramesDir(), c.opts.FrameRate)
	if err != nil || len(frames) == 0 {
		detail := "no frames extracted"
		if err != nil {
			detail = err.Error()
			span.RecordError(err)
		}
		c.degrade(r, ExtractionDegraded, detail)
		r.report(25, "Frame extraction skipped (file may be audio-only)")
		return nil
	}

	c.metrics.AddFrames(len(frames))
	r.result.Frames = len(frames)
	span.SetAttributes(attribute.Int("frames", len(frames)))
	r.report(25, "Extracted %d frames", len(frames))
	return frames
}

func (c *Coordinator) scan(ctx context.Context, r *run, frames []string) []region.Region {
	if len(frames) == 0 {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "pipeline.scanning")
	defer span.End()
	defer c.timeStage(StageScanning, time.Now())

	r.report(30, "Running AI privacy scan (OCR + pattern matching)...")
	report := c.scanner.ScanFrames(ctx, frames)

	if report.FailedFrames > 0 {
		c.degrade(r, ScanDegraded, fmt.Sprintf("OCR failed on %d of %d frames", report.FailedFrames, report.Frames))
	}
	for _, f := range report.Findings {
		c.metrics.AddDetections(string(f.Category), f.Count)
	}

	r.result.Findings = report.Findings
	r.result.DetectionCount = len(report.Regions)
	span.SetAttributes(attribute.Int("regions", len(report.Regions)))
	r.report(50, "AI detected %d sensitive region(s)", len(report.Regions))
	return report.Regions
}

// combine appends manual regions after the merged AI regions and clamps the
// lot to the frame when its size is known.
func (c *Coordinator) combine(r *run, ai, manual []region.Region) []region.Region {
	defer c.timeStage(StageMerging, time.Now())

	all := make([]region.Region, 0, len(ai)+len(manual))
	all = append(all, ai...)
	all = append(all, manual...)

	clean := region.Sanitize(all, r.result.Width, r.result.Height)
	if dropped := len(all) - len(clean); dropped > 0 {
		r.log.Warn("Dropped regions outside the frame",
			zap.Int("dropped", dropped),
			zap.Int("width", r.result.Width),
			zap.Int("height", r.result.Height),
		)
	}
	return clean
}

func (c *Coordinator) composite(ctx context.Context, r *run, rawPath string, regions []region.Region) error {
	ctx, span := c.tracer.Start(ctx, "pipeline.compositing", trace.WithAttributes(
		attribute.Int("regions", len(regions)),
	))
	defer span.End()
	defer c.timeStage(StageCompositing, time.Now())

	if len(regions) > 0 {
		r.report(55, "Applying privacy blur to %d region(s)...", len(regions))
	} else {
		r.report(55, "No sensitive regions found, copying streams...")
	}

	if err := c.media.ApplyRegions(ctx, rawPath, regions, r.arena.CompositePath()); err != nil {
		span.RecordError(err)
		return &RunError{Stage: StageCompositing, RunID: r.id, Err: fmt.Errorf("%w: %w", ErrCompositionFailed, err)}
	}

	if len(regions) > 0 {
		r.report(70, "Privacy blur applied")
	} else {
		r.report(70, "No sensitive regions found, skipping blur")
	}
	return nil
}

// sanitize denoises the composite and stages the result. Any failure falls
// back to staging the composite unchanged.
func (c *Coordinator) sanitize(ctx context.Context, r *run, probe *media.Probe) {
	ctx, span := c.tracer.Start(ctx, "pipeline.sanitizing")
	defer span.End()
	defer c.timeStage(StageSanitizing, time.Now())

	r.report(75, "Applying audio noise suppression...")

	var cause error
	if probe != nil && !probe.HasAudio() {
		cause = errors.New("no audio track")
	} else {
		cause = c.media.Denoise(ctx, r.arena.CompositePath(), r.arena.SanitizedPath())
	}

	if cause == nil {
		r.staged = r.arena.SanitizedPath()
		r.report(90, "Audio noise suppression complete")
		return
	}

	span.RecordError(cause)
	c.degrade(r, SanitizationDegraded, cause.Error())
	r.staged = r.arena.CompositePath()
	r.report(90, "Noise suppression skipped (no audio track or FFmpeg issue)")
}

// publish moves the staged result over the output path in one rename.
func (c *Coordinator) publish(r *run) error {
	defer c.timeStage(StageFinalizing, time.Now())
	if err := moveFile(r.staged, r.output); err != nil {
		return &RunError{Stage: StageFinalizing, RunID: r.id, Err: fmt.Errorf("%w: %w", ErrFinalizeFailed, err)}
	}
	return nil
}

func (c *Coordinator) cleanup(ctx context.Context, r *run) {
	_, span := c.tracer.Start(ctx, "pipeline.cleanup")
	defer span.End()
	defer c.timeStage(StageCleanup, time.Now())

	if err := c.release(r); err != nil {
		c.degrade(r, CleanupFailed, err.Error())
	}
}

// abort releases the arena of a failed run. Nothing was published, so the
// output path is left as it was before the run.
func (c *Coordinator) abort(r *run) {
	if err := c.release(r); err != nil {
		r.log.Warn("Failed to release run arena", zap.Error(err))
	}
}

func (c *Coordinator) release(r *run) error {
	if r.released || r.arena == nil {
		return nil
	}
	r.released = true
	return r.arena.Release()
}

func (c *Coordinator) degrade(r *run, kind DegradationKind, detail string) {
	r.result.Degradations = append(r.result.Degradations, Degradation{Kind: kind, Detail: detail})
	c.metrics.Degraded(string(kind))
	r.log.Warn("Pipeline degraded", zap.String("kind", string(kind)), zap.String("detail", detail))
}

func (c *Coordinator) timeStage(stage Stage, start time.Time) {
	c.metrics.ObserveStage(string(stage), time.Since(start))
}

// moveFile renames src to dst, copying when they sit on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy to %s: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	// src lives in the arena, which is released afterwards anyway
	_ = os.Remove(src)
	return nil
}
