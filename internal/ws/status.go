package ws

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// StatusPayload is the /api/status response: server accounting plus process
// self-metrics.
type StatusPayload struct {
	UptimeSeconds   float64 `json:"uptimeSeconds"`
	Sessions        int     `json:"sessions"`
	Generation      uint64  `json:"generation"`
	TrackedFiles    int     `json:"trackedFiles"`
	Published       uint64  `json:"published"`
	Degenerate      uint64  `json:"degenerate"`
	DroppedSessions uint64  `json:"droppedSessions"`
	CPUPercent      float64 `json:"cpuPercent"`
	MemoryRSS       uint64  `json:"memoryRss"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	published, degenerate, dropped := s.broadcaster.Counters()
	cpu, rss := processStats()

	payload := StatusPayload{
		UptimeSeconds:   time.Since(s.startedAt).Seconds(),
		Sessions:        s.registry.Len(),
		Generation:      s.store.Generation(),
		TrackedFiles:    s.store.Current().Len(),
		Published:       published,
		Degenerate:      degenerate,
		DroppedSessions: dropped,
		CPUPercent:      cpu,
		MemoryRSS:       rss,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// processStats reads the server's own CPU and resident memory. Failures are
// reported as zeros; status must not fail because metrics are unavailable.
func processStats() (cpuPercent float64, rss uint64) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0
	}
	if v, err := p.CPUPercent(); err == nil {
		cpuPercent = v
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		rss = mi.RSS
	}
	return cpuPercent, rss
}
