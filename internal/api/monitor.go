package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/hamonitor/internal/balance"
	"github.com/nerrad567/hamonitor/internal/history"
	"github.com/nerrad567/hamonitor/internal/monitor"
	"github.com/nerrad567/hamonitor/internal/offline"
)

const healthCheckTimeout = 2 * time.Second

// pollInfo identifies the poll a response was derived from.
type pollInfo struct {
	PollID  string    `json:"poll_id"`
	TakenAt time.Time `json:"taken_at"`
	Known   bool      `json:"known"`
	Error   string    `json:"error,omitempty"`
}

func pollInfoOf(snap *monitor.Snapshot) pollInfo {
	return pollInfo{PollID: snap.ID, TakenAt: snap.TakenAt, Known: snap.Known, Error: snap.Error}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Checks   map[string]string `json:"checks,omitempty"`
	LastPoll *pollInfo         `json:"last_poll,omitempty"`
}

// handleHealth reports "degraded" when any dependency check fails. The
// status code stays 200 so liveness probes do not restart the process
// while Home Assistant is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.version}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, c := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := c.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	if snap := s.monitor.Current(); snap != nil {
		info := pollInfoOf(snap)
		resp.LastPoll = &info
	}

	writeJSON(w, http.StatusOK, resp)
}

type configResponse struct {
	Theme        string   `json:"theme"`
	TodoEntities []string `json:"todo_entities"`
	TodoLanguage string   `json:"todo_language"`
	Balance      []string `json:"balance_entities"`
}

// handleConfig returns the card options a dashboard needs to render.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	resp := configResponse{
		Theme:        string(s.cards.Theme),
		TodoEntities: []string{},
		TodoLanguage: s.cards.Todo.Language,
		Balance:      make([]string, 0, len(s.cards.Balance.Entities)),
	}
	if s.todo != nil {
		resp.TodoEntities = s.todo.Entities()
	}
	for _, b := range s.cards.Balance.Entities {
		resp.Balance = append(resp.Balance, b.EntityID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.monitor.Current()
	if snap == nil {
		writeNoSnapshot(w)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type summaryResponse struct {
	PollID  string    `json:"poll_id"`
	TakenAt time.Time `json:"taken_at"`
	Error   string    `json:"error,omitempty"`
	monitor.Summary
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	snap := s.monitor.Current()
	if snap == nil {
		writeNoSnapshot(w)
		return
	}
	writeJSON(w, http.StatusOK, summaryOf(snap))
}

func summaryOf(snap *monitor.Snapshot) summaryResponse {
	return summaryResponse{
		PollID:  snap.ID,
		TakenAt: snap.TakenAt,
		Error:   snap.Error,
		Summary: snap.Summary(),
	}
}

// handleRefresh queues an extra poll. The result arrives over the
// WebSocket or on the next read.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.monitor.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

type offlineDeviceView struct {
	offline.OfflineDevice
	OfflineSince *time.Time `json:"offline_since,omitempty"`
}

type offlineEntityView struct {
	offline.OfflineEntity
	OfflineSince *time.Time `json:"offline_since,omitempty"`
}

type offlineResponse struct {
	pollInfo
	Devices  []offlineDeviceView `json:"devices"`
	Entities []offlineEntityView `json:"entities"`
}

// handleOffline returns the offline sets, annotated with when each item was
// first seen offline when history is enabled.
func (s *Server) handleOffline(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Current()
	if snap == nil {
		writeNoSnapshot(w)
		return
	}

	writeJSON(w, http.StatusOK, offlineOf(snap, func(kind history.Kind, id string) *time.Time {
		return s.offlineSince(r.Context(), kind, id)
	}))
}

// offlineOf builds the offline views. since may be nil.
func offlineOf(snap *monitor.Snapshot, since func(kind history.Kind, id string) *time.Time) offlineResponse {
	if since == nil {
		since = func(history.Kind, string) *time.Time { return nil }
	}
	resp := offlineResponse{
		pollInfo: pollInfoOf(snap),
		Devices:  make([]offlineDeviceView, 0, len(snap.Offline.Devices)),
		Entities: make([]offlineEntityView, 0, len(snap.Offline.Entities)),
	}
	for _, d := range snap.Offline.Devices {
		resp.Devices = append(resp.Devices, offlineDeviceView{
			OfflineDevice: d,
			OfflineSince:  since(history.KindDevice, d.DeviceID),
		})
	}
	for _, e := range snap.Offline.Entities {
		resp.Entities = append(resp.Entities, offlineEntityView{
			OfflineEntity: e,
			OfflineSince:  since(history.KindEntity, e.EntityID),
		})
	}
	return resp
}

func (s *Server) offlineSince(ctx context.Context, kind history.Kind, id string) *time.Time {
	if s.history == nil {
		return nil
	}
	t, err := s.history.FirstSeenOffline(ctx, kind, id)
	if err != nil {
		return nil
	}
	return &t
}

type balanceResponse struct {
	pollInfo
	Readings []balance.Reading `json:"readings"`
	Low      int               `json:"low"`
}

func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request) {
	snap := s.monitor.Current()
	if snap == nil {
		writeNoSnapshot(w)
		return
	}
	writeJSON(w, http.StatusOK, balanceOf(snap))
}

func balanceOf(snap *monitor.Snapshot) balanceResponse {
	readings := snap.Balance
	if readings == nil {
		readings = []balance.Reading{}
	}
	return balanceResponse{
		pollInfo: pollInfoOf(snap),
		Readings: readings,
		Low:      balance.LowCount(readings),
	}
}

// handleHistory lists recent polls, newest first. ?limit= caps the count.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading history failed", "error", err)
		writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []history.PollRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"polls": records})
}
