package ocr

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/raaihank/snapvault/internal/region"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t1920\t1080\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t100\t40\t600\t30\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t40\t120\t30\t96.5\tContact:\n" +
	"5\t1\t1\t1\t1\t2\t230\t40\t300\t30\t91.0\tjane.doe@example.com\n" +
	"5\t1\t1\t1\t1\t3\t540\t40\t10\t30\t12.0\t \n"

func TestParseTSV(t *testing.T) {
	words, err := ParseTSV([]byte(sampleTSV))
	if err != nil {
		t.Fatalf("ParseTSV failed: %v", err)
	}

	want := []Word{
		{Text: "Contact:", Confidence: 96.5, Box: region.Region{X: 100, Y: 40, W: 120, H: 30}},
		{Text: "jane.doe@example.com", Confidence: 91.0, Box: region.Region{X: 230, Y: 40, W: 300, H: 30}},
	}
	if !reflect.DeepEqual(words, want) {
		t.Fatalf("ParseTSV = %+v, want %+v", words, want)
	}
}

func TestParseTSVRejectsMalformedRows(t *testing.T) {
	cases := map[string]string{
		"short row": "level\ttext\n5\t1\t1\n",
		"bad level": "level\n x\t1\t1\t1\t1\t1\t1\t1\t1\t1\t1\tword\n",
		"bad box":   "level\n5\t1\t1\t1\t1\t1\tleft\t1\t1\t1\t90\tword\n",
		"bad conf":  "level\n5\t1\t1\t1\t1\t1\t1\t1\t1\t1\thigh\tword\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseTSV([]byte(input)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestParseTSVEmpty(t *testing.T) {
	words, err := ParseTSV(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(words) != 0 {
		t.Fatalf("expected no words, got %v", words)
	}
}

func TestTesseractRecognize(t *testing.T) {
	var gotName string
	var gotArgs []string
	rec := NewTesseract(
		WithBinary("/opt/tesseract"),
		WithLanguage("deu"),
		WithCommandOutput(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			gotName, gotArgs = name, args
			return []byte(sampleTSV), nil
		}),
	)

	words, err := rec.Recognize(context.Background(), "/tmp/frame_0001.png")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(words))
	}
	if gotName != "/opt/tesseract" {
		t.Errorf("unexpected binary %q", gotName)
	}
	if strings.Join(gotArgs, " ") != "/tmp/frame_0001.png stdout -l deu tsv" {
		t.Errorf("unexpected args %v", gotArgs)
	}
}

func TestTesseractRecognizeErrors(t *testing.T) {
	rec := NewTesseract(WithCommandOutput(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}))

	if _, err := rec.Recognize(context.Background(), ""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := rec.Recognize(context.Background(), "frame.png"); err == nil {
		t.Error("expected command failure to surface")
	}
}

func TestTesseractTimeout(t *testing.T) {
	rec := NewTesseract(
		WithTimeout(10*time.Millisecond),
		WithCommandOutput(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	)

	_, err := rec.Recognize(context.Background(), "frame.png")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
