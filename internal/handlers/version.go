package handlers

import (
	"net/http"

	"rere-player/internal/startup"
)

// VersionResponse is build information plus the current session.
type VersionResponse struct {
	startup.BuildInfo
	SessionID string `json:"sessionId"`
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, VersionResponse{
		BuildInfo: startup.GetBuildInfo(),
		SessionID: h.session.Identity().ID(),
	})
}
