package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raaihank/snapvault/internal/logger"
	"github.com/raaihank/snapvault/internal/privacy"
	"github.com/raaihank/snapvault/internal/recordings"
)

type failingSource struct{}

func (failingSource) All(ctx context.Context) ([]recordings.Recording, error) {
	return nil, errors.New("db down")
}

func TestExportWritesEveryRecording(t *testing.T) {
	ctx := context.Background()
	store := recordings.NewMemoryStore()
	store.Insert(ctx, recordings.Recording{UserID: "u1", OriginalName: "a.mp4", GeneratedName: "a_processed.mp4", Detections: 3, Duration: 4.5},
		[]privacy.Finding{{Category: privacy.CategoryEmail, Count: 3}})
	store.Insert(ctx, recordings.Recording{UserID: "u2", OriginalName: "b.mp4", Blurred: 2}, nil)

	out := filepath.Join(t.TempDir(), "recordings.parquet")
	result, err := NewExporter(store, logger.NewNop()).Export(ctx, out)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if result.Rows != 2 {
		t.Errorf("Rows = %d, want 2", result.Rows)
	}

	rows, err := ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("read %d rows, want 2", len(rows))
	}
	if rows[0].OriginalName != "a.mp4" || rows[0].Detections != 3 || rows[0].Duration != 4.5 {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[1].Blurred != 2 || rows[1].CreatedAtMs == 0 {
		t.Errorf("unexpected second row %+v", rows[1])
	}
}

func TestExportEmptyHistory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.parquet")
	result, err := NewExporter(recordings.NewMemoryStore(), logger.NewNop()).Export(context.Background(), out)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if result.Rows != 0 {
		t.Errorf("Rows = %d, want 0", result.Rows)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected output file: %v", err)
	}
}

func TestExportSourceFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "fail.parquet")
	if _, err := NewExporter(failingSource{}, logger.NewNop()).Export(context.Background(), out); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty dir, found %d entries", len(entries))
	}
}

func TestToRowTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	row := toRow(recordings.Recording{ID: 9, CreatedAt: at})
	if row.CreatedAtMs != at.UnixMilli() || row.ID != 9 {
		t.Errorf("unexpected row %+v", row)
	}
	if toRow(recordings.Recording{}).CreatedAtMs != 0 {
		t.Error("zero time should export as 0")
	}
}
