package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"rere-player/internal/blob"
	"rere-player/internal/logging"
	"rere-player/internal/mediatypes"
)

// ServeBlob serves a local file by its session-scoped reference with
// Range support. References issued by an earlier run are 410 Gone.
func (h *Handlers) ServeBlob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	f, entry, err := h.blobs.Open(vars["session"], vars["id"])
	switch {
	case errors.Is(err, blob.ErrGone):
		http.Error(w, "Reference belongs to a previous session", http.StatusGone)
		return
	case errors.Is(err, blob.ErrNotFound):
		http.Error(w, "Reference not found", http.StatusNotFound)
		return
	case err != nil:
		logging.Error("Failed to open %s: %v", entry.Path, err)
		http.Error(w, "File unavailable", http.StatusNotFound)
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logging.Debug("Failed to close %s: %v", entry.Path, cerr)
		}
	}()

	if ext := mediatypes.Ext(entry.Name); mediatypes.IsPlayable(ext) {
		w.Header().Set("Content-Type", mediatypes.MimeType(ext))
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, entry.Name, entry.ModTime, f)
}
