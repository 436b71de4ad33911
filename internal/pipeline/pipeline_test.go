package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/media"
	"github.com/raaihank/snapvault/internal/privacy"
	"github.com/raaihank/snapvault/internal/progress"
	"github.com/raaihank/snapvault/internal/region"
	"github.com/raaihank/snapvault/internal/scanner"
	"github.com/raaihank/snapvault/internal/storage"
)

// fakeMedia writes small marker files instead of running ffmpeg.
type fakeMedia struct {
	mu sync.Mutex

	probe      media.Probe
	probeErr   error
	frames     int
	extractErr error
	applyErr   error
	denoiseErr error

	extractCalls int
	denoiseCalls int
	applied      [][]region.Region
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		frames: 3,
		probe: media.Probe{Streams: []media.Stream{
			{CodecType: "video", Width: 1920, Height: 1080},
			{CodecType: "audio"},
		}, Format: media.Format{Duration: "42.0"}},
	}
}

func (f *fakeMedia) ExtractFrames(ctx context.Context, videoPath, outDir string, fps int) ([]string, error) {
	f.mu.Lock()
	f.extractCalls++
	f.mu.Unlock()
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	var paths []string
	for i := 1; i <= f.frames; i++ {
		p := filepath.Join(outDir, fmt.Sprintf(media.FramePattern, i))
		if err := os.WriteFile(p, []byte("png"), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (f *fakeMedia) ApplyRegions(ctx context.Context, videoPath string, regions []region.Region, outPath string) error {
	f.mu.Lock()
	f.applied = append(f.applied, append([]region.Region(nil), regions...))
	f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	return os.WriteFile(outPath, []byte(fmt.Sprintf("composite:%d", len(regions))), 0o644)
}

func (f *fakeMedia) Denoise(ctx context.Context, videoPath, outPath string) error {
	f.mu.Lock()
	f.denoiseCalls++
	f.mu.Unlock()
	if f.denoiseErr != nil {
		return f.denoiseErr
	}
	data, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, append([]byte("denoised:"), data...), 0o644)
}

func (f *fakeMedia) Probe(ctx context.Context, path string) (media.Probe, error) {
	return f.probe, f.probeErr
}

type fakeScanner struct {
	mu     sync.Mutex
	report scanner.Report
	calls  int
}

func (s *fakeScanner) ScanFrames(ctx context.Context, framePaths []string) scanner.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	r := s.report
	r.Frames = len(framePaths)
	return r
}

type recordingSink struct {
	mu     sync.Mutex
	events []progress.Event
}

func (s *recordingSink) Report(e progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) percents() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.events))
	for i, e := range s.events {
		out[i] = e.Percent
	}
	return out
}

type harness struct {
	locator *storage.Locator
	media   *fakeMedia
	scanner *fakeScanner
	coord   *Coordinator
	raw     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	locator := storage.NewLocator(t.TempDir())
	if err := locator.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	raw, err := locator.SaveUpload("demo.webm", strings.NewReader("raw video"))
	if err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}

	h := &harness{
		locator: locator,
		media:   newFakeMedia(),
		scanner: &fakeScanner{},
		raw:     raw,
	}
	h.coord = New(h.media, h.scanner, locator, Options{FrameRate: 1}, nil, logger.NewNop())
	return h
}

func assertArenaGone(t *testing.T, h *harness, runID string) {
	t.Helper()
	dir := filepath.Join(h.locator.WorkDir(), runID)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("run arena %s still exists (err=%v)", dir, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestRunPassthrough(t *testing.T) {
	h := newHarness(t)
	sink := &recordingSink{}

	res, err := h.coord.Run(context.Background(), h.raw, nil, sink)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.DetectionCount != 0 {
		t.Errorf("DetectionCount = %d, want 0", res.DetectionCount)
	}
	if len(h.media.applied) != 1 || len(h.media.applied[0]) != 0 {
		t.Errorf("expected one stream-copy composite, got %v", h.media.applied)
	}

	wantOut := filepath.Join(h.locator.ProcessedDir(), "demo_processed.mp4")
	if res.OutputPath != wantOut {
		t.Errorf("OutputPath = %q, want %q", res.OutputPath, wantOut)
	}
	if got := readFile(t, res.OutputPath); got != "denoised:composite:0" {
		t.Errorf("output content = %q", got)
	}
	if res.DurationSeconds != 42 || res.Width != 1920 || res.Height != 1080 {
		t.Errorf("probe data not recorded: %+v", res)
	}
	if len(res.Degradations) != 0 {
		t.Errorf("unexpected degradations %+v", res.Degradations)
	}
	assertArenaGone(t, h, res.RunID)
}

func TestRunProgressCheckpoints(t *testing.T) {
	h := newHarness(t)
	h.scanner.report = scanner.Report{Regions: []region.Region{{X: 10, Y: 10, W: 50, H: 20}}}
	sink := &recordingSink{}

	if _, err := h.coord.Run(context.Background(), h.raw, nil, sink); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []int{10, 25, 30, 50, 55, 70, 75, 90, 95, 100}
	if got := sink.percents(); !reflect.DeepEqual(got, want) {
		t.Fatalf("percents = %v, want %v", got, want)
	}
}

func TestRunDetectionCountExcludesManualRegions(t *testing.T) {
	h := newHarness(t)
	ai := []region.Region{{X: 0, Y: 0, W: 100, H: 40}, {X: 500, Y: 500, W: 80, H: 40}}
	h.scanner.report = scanner.Report{
		Regions:  ai,
		Findings: []privacy.Finding{{Category: privacy.CategoryEmail, Count: 3}},
	}
	manual := []region.Region{{X: 10, Y: 10, W: 30, H: 30}}

	res, err := h.coord.Run(context.Background(), h.raw, manual, progress.Nop)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.DetectionCount != 2 {
		t.Errorf("DetectionCount = %d, want 2", res.DetectionCount)
	}
	if res.ManualRegions != 1 {
		t.Errorf("ManualRegions = %d, want 1", res.ManualRegions)
	}

	// manual regions follow AI regions and are not merged with them
	want := append(append([]region.Region(nil), ai...), manual...)
	if !reflect.DeepEqual(h.media.applied[0], want) {
		t.Errorf("applied regions = %v, want %v", h.media.applied[0], want)
	}
	if len(res.Findings) != 1 || res.Findings[0].Count != 3 {
		t.Errorf("findings not carried: %+v", res.Findings)
	}
}

func TestRunClampsRegionsToFrame(t *testing.T) {
	h := newHarness(t)
	h.media.probe.Streams[0].Width = 100
	h.media.probe.Streams[0].Height = 100
	manual := []region.Region{
		{X: 90, Y: 90, W: 50, H: 50},
		{X: 200, Y: 200, W: 10, H: 10},
		{X: 10, Y: 10, W: 0, H: 5},
	}

	if _, err := h.coord.Run(context.Background(), h.raw, manual, progress.Nop); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []region.Region{{X: 90, Y: 90, W: 10, H: 10}}
	if !reflect.DeepEqual(h.media.applied[0], want) {
		t.Fatalf("applied regions = %v, want %v", h.media.applied[0], want)
	}
}

func TestRunSanitizerFallback(t *testing.T) {
	h := newHarness(t)
	h.media.denoiseErr = errors.New("Output file #0 does not contain any stream")
	h.scanner.report = scanner.Report{Regions: []region.Region{{X: 1, Y: 1, W: 10, H: 10}}}

	res, err := h.coord.Run(context.Background(), h.raw, nil, progress.Nop)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := readFile(t, res.OutputPath); got != "composite:1" {
		t.Errorf("fallback output = %q, want the composite", got)
	}
	if len(res.Degradations) != 1 || res.Degradations[0].Kind != SanitizationDegraded {
		t.Errorf("expected sanitization degradation, got %+v", res.Degradations)
	}
	assertArenaGone(t, h, res.RunID)
}

func TestRunSkipsDenoiseWithoutAudio(t *testing.T) {
	h := newHarness(t)
	h.media.probe.Streams = h.media.probe.Streams[:1]

	res, err := h.coord.Run(context.Background(), h.raw, nil, progress.Nop)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if h.media.denoiseCalls != 0 {
		t.Errorf("Denoise should not run without an audio track")
	}
	if got := readFile(t, res.OutputPath); got != "composite:0" {
		t.Errorf("output = %q", got)
	}
	if len(res.Degradations) != 1 || res.Degradations[0].Kind != SanitizationDegraded {
		t.Errorf("expected sanitization degradation, got %+v", res.Degradations)
	}
}

func TestRunCompositionFailure(t *testing.T) {
	h := newHarness(t)
	h.media.applyErr = errors.New("Invalid crop size")
	sink := &recordingSink{}

	_, err := h.coord.RunWithID(context.Background(), "run-fail", h.raw, nil, sink)
	if err == nil {
		t.Fatal("expected composition failure")
	}
	if !errors.Is(err, ErrCompositionFailed) {
		t.Errorf("expected ErrCompositionFailed, got %v", err)
	}
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Stage != StageCompositing || runErr.RunID != "run-fail" {
		t.Errorf("expected RunError at compositing, got %#v", err)
	}

	output := filepath.Join(h.locator.ProcessedDir(), "demo_processed.mp4")
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Errorf("output path must not exist after failure (err=%v)", statErr)
	}
	assertArenaGone(t, h, "run-fail")

	for _, p := range sink.percents() {
		if p >= 70 {
			t.Errorf("no checkpoint past compositing expected, saw %d", p)
		}
	}
}

func TestFailedRerunKeepsEarlierOutput(t *testing.T) {
	h := newHarness(t)
	h.scanner.report = scanner.Report{Regions: []region.Region{{X: 1, Y: 1, W: 10, H: 10}}}

	first, err := h.coord.Run(context.Background(), h.raw, nil, progress.Nop)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	before := readFile(t, first.OutputPath)

	h.media.applyErr = errors.New("Invalid crop size")
	if _, err := h.coord.RunWithID(context.Background(), "run-retry", h.raw, nil, progress.Nop); !errors.Is(err, ErrCompositionFailed) {
		t.Fatalf("expected composition failure, got %v", err)
	}

	if got := readFile(t, first.OutputPath); got != before {
		t.Errorf("earlier output changed to %q, want %q", got, before)
	}
	assertArenaGone(t, h, "run-retry")
}

func TestRunFinalizeFailure(t *testing.T) {
	h := newHarness(t)
	// a directory at the output path makes the final rename fail
	output := filepath.Join(h.locator.ProcessedDir(), "demo_processed.mp4")
	if err := os.MkdirAll(filepath.Join(output, "busy"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := h.coord.RunWithID(context.Background(), "run-final", h.raw, nil, progress.Nop)
	if !errors.Is(err, ErrFinalizeFailed) {
		t.Fatalf("expected ErrFinalizeFailed, got %v", err)
	}
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Stage != StageFinalizing {
		t.Errorf("expected RunError at finalizing, got %#v", err)
	}
	if _, statErr := os.Stat(output + ".part"); !os.IsNotExist(statErr) {
		t.Errorf("partial copy left behind (err=%v)", statErr)
	}
	assertArenaGone(t, h, "run-final")
}

func TestRunExtractionDegraded(t *testing.T) {
	h := newHarness(t)
	h.media.extractErr = errors.New("Output file #0 does not contain any stream")

	res, err := h.coord.Run(context.Background(), h.raw, nil, progress.Nop)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if h.scanner.calls != 0 {
		t.Error("scanner should be skipped when no frames were sampled")
	}
	if res.DetectionCount != 0 || res.Frames != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Degradations) == 0 || res.Degradations[0].Kind != ExtractionDegraded {
		t.Errorf("expected extraction degradation, got %+v", res.Degradations)
	}
}

func TestRunAudioOnlySkipsSampling(t *testing.T) {
	h := newHarness(t)
	h.media.probe.Streams = []media.Stream{{CodecType: "audio"}}

	res, err := h.coord.Run(context.Background(), h.raw, nil, progress.Nop)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if h.media.extractCalls != 0 {
		t.Error("ExtractFrames should not run without a video stream")
	}
	if got := readFile(t, res.OutputPath); got != "denoised:composite:0" {
		t.Errorf("output = %q", got)
	}
}

func TestRunScanDegraded(t *testing.T) {
	h := newHarness(t)
	h.scanner.report = scanner.Report{FailedFrames: 2}

	res, err := h.coord.Run(context.Background(), h.raw, nil, progress.Nop)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Degradations) != 1 || res.Degradations[0].Kind != ScanDegraded {
		t.Errorf("expected scan degradation, got %+v", res.Degradations)
	}
}

func TestRunProbeFailureIsTolerated(t *testing.T) {
	h := newHarness(t)
	h.media.probeErr = errors.New("ffprobe not found")
	manual := []region.Region{{X: 5000, Y: 5000, W: 10, H: 10}}

	res, err := h.coord.Run(context.Background(), h.raw, manual, progress.Nop)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// without a frame size regions pass through unclamped
	if !reflect.DeepEqual(h.media.applied[0], manual) {
		t.Errorf("applied = %v", h.media.applied[0])
	}
	if res.DurationSeconds != 0 {
		t.Errorf("DurationSeconds = %v", res.DurationSeconds)
	}
}

func TestRunInvalidInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.Run(context.Background(), filepath.Join(h.locator.RawDir(), "missing.mp4"), nil, progress.Nop)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(h.media.applied) != 0 {
		t.Error("no media work expected")
	}
}

func TestRunSurvivesPanickingSink(t *testing.T) {
	h := newHarness(t)
	sink := progress.Func(func(progress.Event) { panic("client went away") })

	if _, err := h.coord.Run(context.Background(), h.raw, nil, sink); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestConcurrentRunsOnSameName(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.coord.Run(context.Background(), h.raw, nil, progress.Nop)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("run %d failed: %v", i, err)
		}
	}
	entries, err := os.ReadDir(h.locator.WorkDir())
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("arenas left behind: %d", len(entries))
	}
}
