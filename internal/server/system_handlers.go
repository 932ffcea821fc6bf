package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const dbCheckTimeout = 5 * time.Second

// DatabaseChecker is the view of a database the status endpoint needs.
type DatabaseChecker interface {
	Name() string
	Path() string
	HealthCheck(ctx context.Context) error
}

// DBInfo represents database information
type DBInfo struct {
	Name    string  `json:"name"`
	Path    string  `json:"path"`
	SizeMB  float64 `json:"size_mb"`
	Healthy bool    `json:"healthy"`
	Error   string  `json:"error,omitempty"`
}

// SystemStatusResponse represents the system status payload
type SystemStatusResponse struct {
	Status        string   `json:"status"`
	DataDir       string   `json:"data_dir"`
	CPUPercent    float64  `json:"cpu_percent"`
	MemoryPercent float64  `json:"memory_percent"`
	Goroutines    int      `json:"goroutines"`
	UptimeSeconds float64  `json:"uptime_seconds"`
	Databases     []DBInfo `json:"databases"`
	LastChecked   string   `json:"last_checked"`
}

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	databases []DatabaseChecker
	startedAt time.Time

	// Replaceable in tests
	systemStats func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, databases []DatabaseChecker) *SystemHandlers {
	h := &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		databases: databases,
		startedAt: time.Now(),
	}
	h.systemStats = h.getSystemStats
	return h
}

// HandleSystemStatus reports host load and database health.
// Status is "degraded" when any database fails its health check.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.systemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		DataDir:       h.dataDir,
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Databases:     make([]DBInfo, 0, len(h.databases)),
		LastChecked:   time.Now().Format(time.RFC3339),
	}

	for _, db := range h.databases {
		info := DBInfo{Name: db.Name(), Path: db.Path(), Healthy: true}
		if stat, err := os.Stat(db.Path()); err == nil {
			info.SizeMB = float64(stat.Size()) / 1024 / 1024
		}

		ctx, cancel := context.WithTimeout(r.Context(), dbCheckTimeout)
		if err := db.HealthCheck(ctx); err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			info.Healthy = false
			info.Error = err.Error()
			response.Status = "degraded"
		}
		cancel()

		response.Databases = append(response.Databases, info)
	}

	h.writeJSON(w, response)
}

// getSystemStats calculates CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// Short sampling window keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
