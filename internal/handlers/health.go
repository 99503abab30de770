package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-cache/internal/memory"
	"media-cache/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Cache summary
	RAMEntries     int    `json:"ramEntries"`
	RAMSize        string `json:"ramSize"`
	DiskSize       string `json:"diskSize"`
	IndexedEntries int    `json:"indexedEntries"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	ready := h.IsReady()
	stats := h.cache.Stats()

	response := HealthResponse{
		Status:         statusStarting,
		Ready:          ready,
		Version:        startup.Version,
		Uptime:         time.Since(h.started).Round(time.Second).String(),
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
		RAMEntries:     stats.RAMEntries,
		RAMSize:        memory.FormatBytes(stats.RAMBytes),
		DiskSize:       memory.FormatBytes(stats.DiskBytes),
		IndexedEntries: stats.IndexedEntries,
	}

	status := http.StatusServiceUnavailable
	if ready {
		response.Status = statusHealthy
		status = http.StatusOK
	}
	writeJSONResponse(w, status, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	// For HEAD requests, only send headers (no body)
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSONStatus(w, http.StatusOK, "alive")
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.IsReady() {
		writeJSONStatus(w, http.StatusOK, "ready")
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
}
