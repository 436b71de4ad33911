// Package scanner finds sensitive text in sampled frames and turns the hits
// into padded, merged blur regions.
package scanner

import (
	"context"
	"fmt"
	"sort"

	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/ocr"
	"github.com/raaihank/snapvault/internal/privacy"
	"github.com/raaihank/snapvault/internal/region"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Detection is one classified word and its box in frame pixels.
type Detection struct {
	Text     string
	BBox     region.Region
	Category privacy.Category
}

// Classifier decides whether a word is sensitive.
type Classifier interface {
	Classify(word string) (privacy.Category, bool)
}

// Options tune how detections become regions.
type Options struct {
	Padding   int
	MergeMode region.Mode
	Workers   int
}

// Report aggregates a scan across frames.
type Report struct {
	Regions      []region.Region
	Detections   int
	Findings     []privacy.Finding
	Frames       int
	FailedFrames int
}

// Scanner runs OCR over frames and classifies the recognized words.
type Scanner struct {
	recognizer ocr.TextRecognizer
	classifier Classifier
	opts       Options
	logger     *logger.Logger
}

// New creates a scanner.
func New(recognizer ocr.TextRecognizer, classifier Classifier, opts Options, log *logger.Logger) *Scanner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}
	if opts.MergeMode == "" {
		opts.MergeMode = region.SinglePass
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scanner{
		recognizer: recognizer,
		classifier: classifier,
		opts:       opts,
		logger:     log.WithComponent("scanner"),
	}
}

// Scan recognizes one frame and returns its detections. Each word reports at
// most one category.
func (s *Scanner) Scan(ctx context.Context, framePath string) ([]Detection, error) {
	words, err := s.recognizer.Recognize(ctx, framePath)
	if err != nil {
		return nil, fmt.Errorf("ocr %s: %w", framePath, err)
	}

	var detections []Detection
	for _, w := range words {
		category, ok := s.classifier.Classify(w.Text)
		if !ok {
			continue
		}
		detections = append(detections, Detection{
			Text:     w.Text,
			BBox:     w.Box,
			Category: category,
		})
		s.logger.Debug("Sensitive text detected",
			zap.String("frame", framePath),
			zap.String("category", string(category)),
			zap.Stringer("bbox", w.Box),
		)
	}
	return detections, nil
}

type frameResult struct {
	index      int
	detections []Detection
	err        error
}

// ScanFrames scans every frame, pads each detection box and merges the
// result. A frame whose OCR fails contributes nothing; the scan carries on.
func (s *Scanner) ScanFrames(ctx context.Context, framePaths []string) Report {
	report := Report{Frames: len(framePaths)}
	if len(framePaths) == 0 {
		return report
	}

	p := pool.NewWithResults[frameResult]().WithMaxGoroutines(s.opts.Workers)
	for i, path := range framePaths {
		p.Go(func() frameResult {
			if err := ctx.Err(); err != nil {
				return frameResult{index: i, err: err}
			}
			dets, err := s.Scan(ctx, path)
			return frameResult{index: i, detections: dets, err: err}
		})
	}
	results := p.Wait()

	// pool results arrive in completion order
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })

	var (
		padded     []region.Region
		categories []privacy.Category
	)
	for _, res := range results {
		if res.err != nil {
			report.FailedFrames++
			s.logger.Warn("Frame scan failed, continuing without it",
				zap.String("frame", framePaths[res.index]),
				zap.Error(res.err),
			)
			continue
		}
		for _, d := range res.detections {
			padded = append(padded, d.BBox.Pad(s.opts.Padding))
			categories = append(categories, d.Category)
		}
	}

	report.Detections = len(padded)
	report.Findings = privacy.Summarize(categories)
	report.Regions = region.Merge(padded, s.opts.MergeMode)

	s.logger.Info("Frames scanned",
		zap.Int("frames", report.Frames),
		zap.Int("failed_frames", report.FailedFrames),
		zap.Int("detections", report.Detections),
		zap.Int("regions", len(report.Regions)),
	)
	return report
}
