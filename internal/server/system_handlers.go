package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/augur/internal/database"
	"github.com/aristath/augur/internal/engine"
	"github.com/aristath/augur/internal/scheduler"
)

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status        string                `json:"status"`
	CPUPercent    float64               `json:"cpu_percent"`
	MemoryPercent float64               `json:"memory_percent"`
	Goroutines    int                   `json:"goroutines"`
	Engine        engine.Status         `json:"engine"`
	Jobs          []scheduler.JobStatus `json:"jobs,omitempty"`
	CheckedAt     time.Time             `json:"checked_at"`
}

// SystemHandlers serves host and pipeline status
type SystemHandlers struct {
	engine  Engine
	jobs    JobLister
	cacheDB *database.DB
	log     zerolog.Logger

	cpuPercent func() ([]float64, error)
	memPercent func() (float64, error)
}

// NewSystemHandlers creates system handlers. jobs and cacheDB may be nil.
func NewSystemHandlers(e Engine, jobs JobLister, cacheDB *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		engine:  e,
		jobs:    jobs,
		cacheDB: cacheDB,
		log:     log.With().Str("handler", "system").Logger(),
		cpuPercent: func() ([]float64, error) {
			return cpu.Percent(100*time.Millisecond, false)
		},
		memPercent: func() (float64, error) {
			v, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return v.UsedPercent, nil
		},
	}
}

// HandleSystemStatus returns host load, engine state and job schedule
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuAvg, memUsed := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		CPUPercent:    cpuAvg,
		MemoryPercent: memUsed,
		Goroutines:    runtime.NumGoroutine(),
		Engine:        h.engine.Status(),
		CheckedAt:     time.Now(),
	}
	if h.jobs != nil {
		response.Jobs = h.jobs.Status()
	}

	if h.cacheDB != nil {
		if err := h.cacheDB.QuickCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Cache database unreachable")
			response.Status = "degraded"
		}
	}

	h.writeJSON(w, response)
}

// HandleJobsStatus lists scheduled jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.jobs != nil {
		jobs = h.jobs.Status()
	}
	h.writeJSON(w, map[string]interface{}{"jobs": jobs})
}

// HandleDatabaseStats reports response cache size
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.cacheDB == nil {
		h.writeJSON(w, map[string]interface{}{"databases": map[string]interface{}{}})
		return
	}

	stats, err := h.cacheDB.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get database stats")
		http.Error(w, "Failed to get database stats", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"databases": map[string]interface{}{h.cacheDB.Name(): stats},
	})
}

// getSystemStats returns CPU and RAM usage percentages, sampling CPU over 100ms
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuAvg := 0.0
	if pct, err := h.cpuPercent(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(pct) > 0 {
		cpuAvg = pct[0]
	}

	memUsed, err := h.memPercent()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	return cpuAvg, memUsed
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
