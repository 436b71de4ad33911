package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/recordings"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Row is the parquet layout of one exported recording
type Row struct {
	ID            int64   `parquet:"id"`
	UserID        string  `parquet:"user_id"`
	OriginalName  string  `parquet:"original_name"`
	GeneratedName string  `parquet:"generated_name"`
	ProcessedURL  string  `parquet:"processed_url"`
	Detections    int64   `parquet:"detections"`
	Blurred       int64   `parquet:"blurred"`
	Duration      float64 `parquet:"duration_seconds"`
	CreatedAtMs   int64   `parquet:"created_at_ms"`
}

// Source supplies the recordings to export
type Source interface {
	All(ctx context.Context) ([]recordings.Recording, error)
}

// Result describes a finished export
type Result struct {
	Path     string        `json:"path"`
	Rows     int64         `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// Exporter writes the recordings history to parquet files
type Exporter struct {
	source Source
	logger *logger.Logger
}

// NewExporter creates an exporter reading from source
func NewExporter(source Source, log *logger.Logger) *Exporter {
	return &Exporter{source: source, logger: log.WithComponent("export")}
}

// Export writes every recording to path. The file appears only once it is
// complete.
func (e *Exporter) Export(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	list, err := e.source.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.parquet")
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := writeRows(ctx, tmp, list)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("failed to move export into place: %w", err)
	}

	result := &Result{Path: path, Rows: n, Duration: time.Since(start)}
	e.logger.Info("Export completed",
		zap.String("path", path),
		zap.Int64("rows", result.Rows),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func writeRows(ctx context.Context, w io.Writer, list []recordings.Recording) (int64, error) {
	writer := parquet.NewWriter(w, parquet.SchemaOf(new(Row)))

	var n int64
	for _, rec := range list {
		if err := ctx.Err(); err != nil {
			writer.Close()
			return n, err
		}
		row := toRow(rec)
		if err := writer.Write(&row); err != nil {
			writer.Close()
			return n, fmt.Errorf("failed to write row %d: %w", rec.ID, err)
		}
		n++
	}
	if err := writer.Close(); err != nil {
		return n, fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return n, nil
}

func toRow(rec recordings.Recording) Row {
	row := Row{
		ID:            rec.ID,
		UserID:        rec.UserID,
		OriginalName:  rec.OriginalName,
		GeneratedName: rec.GeneratedName,
		ProcessedURL:  rec.ProcessedURL,
		Detections:    int64(rec.Detections),
		Blurred:       int64(rec.Blurred),
		Duration:      rec.Duration,
	}
	if !rec.CreatedAt.IsZero() {
		row.CreatedAtMs = rec.CreatedAt.UnixMilli()
	}
	return row
}

// ReadFile loads the rows of an exported file
func ReadFile(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var rows []Row
	for {
		var row Row
		err := reader.Read(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read parquet row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
