package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemStatus is the response of GET /api/v1/system.
type SystemStatus struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Poller        PollerMetrics  `json:"poller"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// PollerMetrics describes the poller and its last completed poll.
type PollerMetrics struct {
	Subscribers int        `json:"subscribers"`
	LastPollSeq uint64     `json:"last_poll_seq"`
	LastPollAt  *time.Time `json:"last_poll_at,omitempty"`
	LastKnown   bool       `json:"last_known"`
}

const bytesPerMB = 1024 * 1024

func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Poller: PollerMetrics{
			Subscribers: s.monitor.SubscriberCount(),
		},
	}

	if snap := s.monitor.Current(); snap != nil {
		at := snap.TakenAt
		status.Poller.LastPollSeq = snap.Seq
		status.Poller.LastPollAt = &at
		status.Poller.LastKnown = snap.Known
	}

	writeJSON(w, http.StatusOK, status)
}
