package handlers

import (
	"net/http"
	"strconv"
)

// GetNotifications returns notifications newer than ?after= (an id).
func (h *Handlers) GetNotifications(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSONError(w, "invalid after parameter", "error", http.StatusBadRequest)
			return
		}
		after = v
	}
	writeJSONOK(w, h.feed.Since(after))
}
