// Package ocr recognizes words and their bounding boxes in still images.
package ocr

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/raaihank/snapvault/internal/region"
)

// Word is one recognized word and its box in image pixels.
type Word struct {
	Text       string
	Confidence float64
	Box        region.Region
}

// TextRecognizer extracts words from an image.
type TextRecognizer interface {
	Recognize(ctx context.Context, imagePath string) ([]Word, error)
}

// commandOutput runs a command and returns its stdout.
type commandOutput func(ctx context.Context, name string, args ...string) ([]byte, error)

// Option configures the Tesseract recognizer.
type Option func(*Tesseract)

// WithBinary overrides the tesseract executable.
func WithBinary(binary string) Option {
	return func(t *Tesseract) {
		if binary != "" {
			t.binary = binary
		}
	}
}

// WithLanguage sets the traineddata language, "eng" by default.
func WithLanguage(lang string) Option {
	return func(t *Tesseract) {
		if lang != "" {
			t.language = lang
		}
	}
}

// WithTimeout bounds each tesseract invocation. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(t *Tesseract) {
		t.timeout = d
	}
}

// WithCommandOutput injects a command executor, used by tests.
func WithCommandOutput(run commandOutput) Option {
	return func(t *Tesseract) {
		if run != nil {
			t.run = run
		}
	}
}

// Tesseract shells out to the tesseract CLI and parses its TSV output.
type Tesseract struct {
	binary   string
	language string
	timeout  time.Duration
	run      commandOutput
}

// NewTesseract constructs a recognizer using defaults.
func NewTesseract(opts ...Option) *Tesseract {
	t := &Tesseract{
		binary:   "tesseract",
		language: "eng",
		run:      defaultCommandOutput,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Recognize runs OCR over imagePath.
func (t *Tesseract) Recognize(ctx context.Context, imagePath string) ([]Word, error) {
	if strings.TrimSpace(imagePath) == "" {
		return nil, errors.New("tesseract: empty image path")
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	out, err := t.run(ctx, t.binary, imagePath, "stdout", "-l", t.language, "tsv")
	if err != nil {
		return nil, fmt.Errorf("tesseract %s: %w", imagePath, err)
	}
	words, err := ParseTSV(out)
	if err != nil {
		return nil, fmt.Errorf("tesseract %s: %w", imagePath, err)
	}
	return words, nil
}

// word rows carry level 5 in tesseract's TSV layout
const tsvWordLevel = 5

// ParseTSV decodes tesseract's TSV output into words. Rows that are not
// word-level or that carry no text are skipped.
func ParseTSV(data []byte) ([]Word, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		words  []Word
		header = true
		lineNo int
	)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if header {
			header = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		// level page block par line word left top width height conf text
		fields := strings.SplitN(line, "\t", 12)
		if len(fields) < 11 {
			return nil, fmt.Errorf("tsv line %d: expected 12 columns, got %d", lineNo, len(fields))
		}
		level, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("tsv line %d: level: %w", lineNo, err)
		}
		if level != tsvWordLevel || len(fields) < 12 {
			continue
		}
		text := strings.TrimSpace(fields[11])
		if text == "" {
			continue
		}

		var box [4]int
		for i := range box {
			v, err := strconv.Atoi(fields[6+i])
			if err != nil {
				return nil, fmt.Errorf("tsv line %d: box: %w", lineNo, err)
			}
			box[i] = v
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil {
			return nil, fmt.Errorf("tsv line %d: conf: %w", lineNo, err)
		}

		words = append(words, Word{
			Text:       text,
			Confidence: conf,
			Box:        region.Region{X: box[0], Y: box[1], W: box[2], H: box[3]},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tsv: %w", err)
	}
	return words, nil
}

func defaultCommandOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
