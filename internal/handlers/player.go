package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"rere-player/internal/localfs"
	"rere-player/internal/playlist"
)

// addRequest is the body of the add endpoints. Paths are local files the
// user picked; URLs are remote sources.
type addRequest struct {
	URLs   []string `json:"urls"`
	Paths  []string `json:"paths"`
	Path   string   `json:"path"`
	Select bool     `json:"select"`
	Origin string   `json:"origin"`
}

type addResponse struct {
	Added []playlist.Item `json:"added"`
	State playlist.State  `json:"state"`
}

// GetPlayer returns the current session snapshot.
func (h *Handlers) GetPlayer(w http.ResponseWriter, _ *http.Request) {
	writeJSONOK(w, h.session.Snapshot())
}

// GetPicker returns hints for the file picker.
func (h *Handlers) GetPicker(w http.ResponseWriter, r *http.Request) {
	writeJSONOK(w, map[string]string{"lastDir": h.store.LastPickedDir(r.Context())})
}

// AddItems appends remote URLs.
func (h *Handlers) AddItems(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}
	if len(req.URLs) == 0 {
		h.fail(w, fmt.Errorf("%w: no urls given", errBadRequest), false)
		return
	}

	added, err := h.session.AddURLs(r.Context(), req.URLs, playlist.AddOptions{Select: req.Select, Origin: req.Origin})
	if err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONOK(w, addResponse{Added: added, State: h.session.Snapshot()})
}

// AddFiles appends local files chosen with the picker.
func (h *Handlers) AddFiles(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}

	files := make([]playlist.LocalFile, 0, len(req.Paths))
	for _, p := range req.Paths {
		if p = strings.TrimSpace(p); p != "" {
			files = append(files, playlist.LocalFile{Capability: localfs.New(p, true)})
		}
	}
	if len(files) == 0 {
		h.fail(w, fmt.Errorf("%w: no paths given", errBadRequest), false)
		return
	}

	added, err := h.session.AddFiles(r.Context(), files, playlist.AddOptions{Select: req.Select, Origin: req.Origin})
	if err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONOK(w, addResponse{Added: added, State: h.session.Snapshot()})
}

// ImportPlaylist adds the entries of a .wpl or .m3u file.
func (h *Handlers) ImportPlaylist(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		h.fail(w, fmt.Errorf("%w: no playlist path given", errBadRequest), false)
		return
	}

	res, err := h.session.Import(r.Context(), req.Path, playlist.AddOptions{Select: req.Select})
	if err != nil {
		h.fail(w, err, true)
		return
	}
	writeJSONOK(w, map[string]any{"result": res, "state": h.session.Snapshot()})
}

// Select activates the item at {index}.
func (h *Handlers) Select(w http.ResponseWriter, r *http.Request) {
	i, err := indexVar(r)
	if err != nil {
		h.fail(w, err, false)
		return
	}
	if err := h.session.Select(r.Context(), i); err != nil {
		h.fail(w, err, true)
		return
	}
	writeJSONOK(w, h.session.Snapshot())
}

// Next advances the cursor, wrapping at the end.
func (h *Handlers) Next(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Next(r.Context(), false); err != nil {
		h.fail(w, err, true)
		return
	}
	writeJSONOK(w, h.session.Snapshot())
}

// Prev moves the cursor back, wrapping at the start.
func (h *Handlers) Prev(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Prev(r.Context()); err != nil {
		h.fail(w, err, true)
		return
	}
	writeJSONOK(w, h.session.Snapshot())
}

// Ended is reported by the UI when the media element finishes.
func (h *Handlers) Ended(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Ended(r.Context()); err != nil {
		h.fail(w, err, true)
		return
	}
	writeJSONOK(w, h.session.Snapshot())
}

// RemoveItem deletes the item at {index}.
func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	i, err := indexVar(r)
	if err != nil {
		h.fail(w, err, false)
		return
	}
	if err := h.session.Remove(r.Context(), i); err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONOK(w, h.session.Snapshot())
}

// ClearItems empties the playlist.
func (h *Handlers) ClearItems(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Clear(r.Context()); err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONOK(w, h.session.Snapshot())
}

// RebindItem completes a rebind prompt with a newly picked path. An empty
// path answers 409 so the UI shows the picker again.
func (h *Handlers) RebindItem(w http.ResponseWriter, r *http.Request) {
	i, err := indexVar(r)
	if err != nil {
		h.fail(w, err, false)
		return
	}
	var req addRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}

	var file playlist.LocalFile
	if p := strings.TrimSpace(req.Path); p != "" {
		file.Capability = localfs.New(p, true)
	}
	if err := h.session.Rebind(r.Context(), i, file); err != nil {
		h.fail(w, err, file.Capability != nil)
		return
	}
	writeJSONOK(w, h.session.Snapshot())
}

// SetLoop sets marker {marker} ("a" or "b") at the current position.
func (h *Handlers) SetLoop(w http.ResponseWriter, r *http.Request) {
	var (
		pos float64
		err error
	)
	switch mux.Vars(r)["marker"] {
	case "a":
		pos, err = h.session.SetLoopA()
	case "b":
		pos, err = h.session.SetLoopB()
	default:
		h.fail(w, fmt.Errorf("%w: unknown loop marker", errBadRequest), false)
		return
	}
	if err != nil {
		// Loop order failures are notified by the session.
		h.fail(w, err, !errors.Is(err, playlist.ErrNoActiveSource))
		return
	}
	writeJSONOK(w, map[string]float64{"position": pos})
}

// ClearLoop removes both loop markers.
func (h *Handlers) ClearLoop(w http.ResponseWriter, _ *http.Request) {
	if err := h.session.ClearLoop(); err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONStatus(w, "cleared")
}

type seekRequest struct {
	Seconds *float64 `json:"seconds"`
	Delta   *float64 `json:"delta"`
}

// Seek moves to an absolute position or by a relative delta.
func (h *Handlers) Seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}

	var (
		pos float64
		err error
	)
	switch {
	case req.Seconds != nil:
		pos, err = h.session.Seek(*req.Seconds)
	case req.Delta != nil:
		pos, err = h.session.SeekBy(*req.Delta)
	default:
		err = fmt.Errorf("%w: seconds or delta required", errBadRequest)
	}
	if err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONOK(w, map[string]float64{"position": pos})
}

type tickRequest struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

// Tick reports playback progress and returns whether the A/B loop jumped.
func (h *Handlers) Tick(w http.ResponseWriter, r *http.Request) {
	var req tickRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}
	res, err := h.session.Tick(req.Position, req.Duration)
	if err != nil {
		// Ticks race with selection changes; not worth a toast.
		status, kind := classify(err)
		writeJSONError(w, err.Error(), kind, status)
		return
	}
	writeJSONOK(w, res)
}

type rateRequest struct {
	Rate  *float64 `json:"rate"`
	Delta *float64 `json:"delta"`
}

// SetRate sets or nudges the playback rate.
func (h *Handlers) SetRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}

	var err error
	rate := 0.0
	switch {
	case req.Rate != nil:
		rate = *req.Rate
		err = h.session.SetRate(rate)
	case req.Delta != nil:
		rate, err = h.session.NudgeRate(*req.Delta)
	default:
		err = fmt.Errorf("%w: rate or delta required", errBadRequest)
	}
	if err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONOK(w, map[string]float64{"rate": rate})
}

// SetVolume sets the output volume in [0, 1].
func (h *Handlers) SetVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, err, false)
		return
	}
	if req.Volume == nil {
		h.fail(w, fmt.Errorf("%w: volume required", errBadRequest), false)
		return
	}
	if err := h.session.SetVolume(*req.Volume); err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONOK(w, map[string]float64{"volume": *req.Volume})
}

// Toggle flips {control}: mute, pause, mirror or repeat.
func (h *Handlers) Toggle(w http.ResponseWriter, r *http.Request) {
	var value bool
	switch control := mux.Vars(r)["control"]; control {
	case "mute":
		value = h.session.ToggleMute()
	case "pause":
		value = h.session.TogglePause()
	case "mirror":
		value = h.session.ToggleMirror()
	case "repeat":
		value = h.session.ToggleRepeat()
	default:
		h.fail(w, fmt.Errorf("%w: unknown control %q", errBadRequest, control), false)
		return
	}
	writeJSONOK(w, map[string]bool{"value": value})
}

// Restart seeks the active item back to zero and plays.
func (h *Handlers) Restart(w http.ResponseWriter, _ *http.Request) {
	if err := h.session.Restart(); err != nil {
		h.fail(w, err, false)
		return
	}
	writeJSONOK(w, h.session.Snapshot())
}
