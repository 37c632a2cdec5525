package handlers

import (
	"net/http"
	"runtime"
	"time"

	"rere-player/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Ready     bool   `json:"ready"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	SessionID string `json:"sessionId"`

	// Player info
	Items          int  `json:"items"`
	LocalItems     int  `json:"localItems"`
	NeedsRebind    int  `json:"needsRebind"`
	LiveReferences int  `json:"liveReferences"`
	Capture        bool `json:"capture"`
	CloudStorage   bool `json:"cloudStorage"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Store file sizes in bytes
	StoreFiles map[string]int64 `json:"storeFiles,omitempty"`
}

// captureAvailable reports whether segment export can run.
func (h *Handlers) captureAvailable() bool {
	return h.captureEnabled && h.ffmpeg != nil && h.ffmpeg.Available()
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := h.session.Stats()

	response := HealthResponse{
		Status:         statusHealthy,
		Ready:          true,
		Version:        startup.Version,
		Uptime:         time.Since(h.started).Round(time.Second).String(),
		SessionID:      h.session.Identity().ID(),
		Items:          stats.Items,
		LocalItems:     stats.LocalItems,
		NeedsRebind:    stats.NeedsRebind,
		LiveReferences: h.blobs.Len(),
		Capture:        h.captureAvailable(),
		CloudStorage:   h.remote != nil && h.remote.Configured(),
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}
	if h.store != nil {
		response.StoreFiles = h.store.FileSizes()
	}

	// Capture is optional, the player still works without it.
	if !response.Capture {
		response.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 once the durable store is open
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.store != nil {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]string{
			"status": "ready",
		})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
	}
}
