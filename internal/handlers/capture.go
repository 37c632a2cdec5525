package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"rere-player/internal/capture"
	"rere-player/internal/logging"
	"rere-player/internal/playlist"
)

type exportRequest struct {
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	// Path is where to save. Empty means the prompt was dismissed and the
	// segment goes to the downloads directory.
	Path string `json:"path"`
}

// ExportSegment records the requested range, by default the A/B loop.
func (h *Handlers) ExportSegment(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}

	res, err := h.session.ExportSegment(r.Context(), playlist.ExportOptions{
		Start:  req.Start,
		End:    req.End,
		Picker: capture.PathPicker{Path: req.Path},
	})
	if err != nil {
		h.fail(w, err, true)
		return
	}
	writeJSONOK(w, res)
}

// TakeSnapshot saves the current frame and returns its download.
func (h *Handlers) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	dl, err := h.session.TakeSnapshot(r.Context())
	if err != nil {
		notified := !errors.Is(err, playlist.ErrNoActiveSource) && !errors.Is(err, capture.ErrCaptureUnsupported)
		h.fail(w, err, notified)
		return
	}
	writeJSONOK(w, dl)
}

// ServeDownload serves a file saved by the download fallback.
func (h *Handlers) ServeDownload(w http.ResponseWriter, r *http.Request) {
	if h.downloads == nil {
		http.Error(w, "Downloads are disabled", http.StatusNotFound)
		return
	}
	name := mux.Vars(r)["name"]
	f, err := h.downloads.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "Download not found", http.StatusNotFound)
			return
		}
		logging.Error("Failed to open download %s: %v", name, err)
		http.Error(w, "Failed to open download", http.StatusInternalServerError)
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logging.Debug("Failed to close download %s: %v", name, cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Failed to stat download", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+info.Name()+`"`)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
