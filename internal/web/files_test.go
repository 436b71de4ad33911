package web

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/raaihank/snapvault/internal/storage"
)

func TestServeProcessed(t *testing.T) {
	locator := storage.NewLocator(t.TempDir())
	if err := locator.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(locator.ProcessedDir(), "demo_processed.mp4"), []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/processed/{name}", ServeProcessed(locator))

	tests := []struct {
		name string
		path string
		want int
	}{
		{"existing file", "/processed/demo_processed.mp4", http.StatusOK},
		{"missing file", "/processed/nope.mp4", http.StatusNotFound},
		{"hidden file", "/processed/.env", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK {
				if rec.Body.String() != "video" {
					t.Errorf("body = %q", rec.Body.String())
				}
				if rec.Header().Get("Cache-Control") == "" {
					t.Error("missing Cache-Control header")
				}
			}
		})
	}
}
