// Package media drives ffmpeg and ffprobe: frame sampling, region blurring,
// speech-band denoising and stream inspection.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/region"
	"go.uber.org/zap"
)

// FramePattern is the printf pattern for sampled frames.
const FramePattern = "frame_%04d.png"

// Transformer is the set of media operations the pipeline needs.
type Transformer interface {
	ExtractFrames(ctx context.Context, videoPath, outDir string, fps int) ([]string, error)
	ApplyRegions(ctx context.Context, videoPath string, regions []region.Region, outPath string) error
	Denoise(ctx context.Context, videoPath, outPath string) error
	Probe(ctx context.Context, path string) (Probe, error)
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// BlurParams is the boxblur kernel applied to each region.
type BlurParams struct {
	Radius int
	Power  int
}

// DenoiseParams configures the speech-band filter chain.
type DenoiseParams struct {
	NoiseFloor float64
	HighpassHz int
	LowpassHz  int
	Gain       float64
}

// Option configures an FFmpeg instance.
type Option func(*FFmpeg)

// WithBinaries overrides the ffmpeg and ffprobe executables.
func WithBinaries(ffmpegBin, ffprobeBin string) Option {
	return func(f *FFmpeg) {
		if ffmpegBin != "" {
			f.ffmpeg = ffmpegBin
		}
		if ffprobeBin != "" {
			f.ffprobe = ffprobeBin
		}
	}
}

// WithBlur sets the blur kernel.
func WithBlur(p BlurParams) Option {
	return func(f *FFmpeg) {
		if p.Radius > 0 && p.Power > 0 {
			f.blur = p
		}
	}
}

// WithDenoise sets the audio filter parameters.
func WithDenoise(p DenoiseParams) Option {
	return func(f *FFmpeg) {
		if p.HighpassHz > 0 && p.LowpassHz > p.HighpassHz {
			f.denoise = p
		}
	}
}

// WithTimeout bounds every tool invocation. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(f *FFmpeg) {
		f.timeout = d
	}
}

// WithRunner allows injecting a custom command runner for tests.
func WithRunner(r Runner) Option {
	return func(f *FFmpeg) {
		if r != nil {
			f.run = r
		}
	}
}

// FFmpeg implements Transformer by shelling out to ffmpeg and ffprobe.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	blur    BlurParams
	denoise DenoiseParams
	timeout time.Duration
	run     Runner
	logger  *logger.Logger
}

// New creates an FFmpeg transformer with the stock blur and denoise settings.
func New(log *logger.Logger, opts ...Option) *FFmpeg {
	if log == nil {
		log = logger.NewNop()
	}
	f := &FFmpeg{
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		blur:    BlurParams{Radius: 20, Power: 5},
		denoise: DenoiseParams{NoiseFloor: -25, HighpassHz: 200, LowpassHz: 3000, Gain: 1.5},
		run:     defaultRunner,
		logger:  log.WithComponent("media"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ExtractFrames samples fps frames per second of source into outDir and
// returns their paths in time order.
func (f *FFmpeg) ExtractFrames(ctx context.Context, videoPath, outDir string, fps int) ([]string, error) {
	if fps < 1 {
		fps = 1
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%d", fps),
		"-q:v", "2",
		filepath.Join(outDir, FramePattern),
	}
	if err := f.exec(ctx, f.ffmpeg, args...); err != nil {
		return nil, fmt.Errorf("frame extraction: %w", err)
	}

	frames, err := filepath.Glob(filepath.Join(outDir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	frames = sortFrames(frames)

	f.logger.Debug("Frames extracted",
		zap.String("video", videoPath),
		zap.Int("count", len(frames)),
	)
	return frames, nil
}

// sortFrames orders frame paths by their numeric index. The %04d padding
// stops sorting lexically at frame 10000. Names without an index are dropped.
func sortFrames(paths []string) []string {
	type indexed struct {
		path  string
		index int
	}
	list := make([]indexed, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		digits := strings.TrimSuffix(strings.TrimPrefix(name, "frame_"), ".png")
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		list = append(list, indexed{path: p, index: n})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].index < list[j].index })

	out := make([]string, len(list))
	for i, f := range list {
		out[i] = f.path
	}
	return out
}

// ApplyRegions blurs every region of videoPath into outPath. With no regions
// the source is stream-copied.
func (f *FFmpeg) ApplyRegions(ctx context.Context, videoPath string, regions []region.Region, outPath string) error {
	var args []string
	if len(regions) == 0 {
		args = []string{"-hide_banner", "-nostdin", "-y", "-i", videoPath, "-c", "copy", outPath}
	} else {
		args = []string{
			"-hide_banner", "-nostdin", "-y",
			"-i", videoPath,
			"-filter_complex", BuildFilterGraph(regions, f.blur),
			"-map", "[vout]",
			"-map", "0:a?",
			"-c:a", "copy",
			outPath,
		}
	}

	if err := f.exec(ctx, f.ffmpeg, args...); err != nil {
		_ = os.Remove(outPath)
		return fmt.Errorf("blur failed: %w", err)
	}

	f.logger.Debug("Regions applied",
		zap.String("video", videoPath),
		zap.Int("regions", len(regions)),
	)
	return nil
}

// Denoise runs the speech-band filter chain over the audio track of videoPath,
// copying the video stream.
func (f *FFmpeg) Denoise(ctx context.Context, videoPath, outPath string) error {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", videoPath,
		"-af", DenoiseChain(f.denoise),
		"-c:v", "copy",
		outPath,
	}
	if err := f.exec(ctx, f.ffmpeg, args...); err != nil {
		_ = os.Remove(outPath)
		return fmt.Errorf("noise suppression failed: %w", err)
	}
	return nil
}

// BuildFilterGraph chains crop, boxblur and overlay for each region onto one
// evolving composite whose final label is [vout].
func BuildFilterGraph(regions []region.Region, blur BlurParams) string {
	parts := make([]string, 0, len(regions)*3)
	last := "[0:v]"
	for i, r := range regions {
		crop := fmt.Sprintf("[crop%d]", i)
		blurred := fmt.Sprintf("[blur%d]", i)
		out := fmt.Sprintf("[ov%d]", i)
		if i == len(regions)-1 {
			out = "[vout]"
		}

		parts = append(parts,
			fmt.Sprintf("[0:v]crop=%d:%d:%d:%d%s", r.W, r.H, r.X, r.Y, crop),
			fmt.Sprintf("%sboxblur=%d:%d%s", crop, blur.Radius, blur.Power, blurred),
			fmt.Sprintf("%s%soverlay=%d:%d%s", last, blurred, r.X, r.Y, out),
		)
		last = out
	}
	return strings.Join(parts, ";")
}

// DenoiseChain renders the audio filter chain.
func DenoiseChain(p DenoiseParams) string {
	return strings.Join([]string{
		fmt.Sprintf("afftdn=nf=%g", p.NoiseFloor),
		fmt.Sprintf("highpass=f=%d", p.HighpassHz),
		fmt.Sprintf("lowpass=f=%d", p.LowpassHz),
		fmt.Sprintf("volume=%g", p.Gain),
	}, ",")
}

func (f *FFmpeg) exec(ctx context.Context, name string, args ...string) error {
	_, err := f.output(ctx, name, args...)
	return err
}

func (f *FFmpeg) output(ctx context.Context, name string, args ...string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	out, err := f.run(ctx, name, args...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("%s timed out after %s: %w", name, f.timeout, err)
	}
	return out, err
}

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, lastLines(out, 5))
	}
	return out, nil
}

// lastLines keeps the tail of tool output, where ffmpeg prints the failure.
func lastLines(out []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
