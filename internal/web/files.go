package web

import (
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/raaihank/snapvault/internal/storage"
)

// ServeProcessed serves finished recordings and snapshots from the processed
// directory. The name comes from the {name} route variable.
func ServeProcessed(locator *storage.Locator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := locator.ProcessedFile(mux.Vars(r)["name"])
		if err != nil {
			http.Error(w, "invalid file name", http.StatusBadRequest)
			return
		}

		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "failed to read file", http.StatusInternalServerError)
			return
		}

		// Outputs are rewritten in place when a recording is reprocessed.
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")

		http.ServeFile(w, r, path)
	}
}
