package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hamonitor/internal/audit"
	"github.com/nerrad567/hamonitor/internal/monitor"
	"github.com/nerrad567/hamonitor/internal/updates"
)

type updatesResponse struct {
	pollInfo
	Total      int                    `json:"total"`
	Core       []updates.UpdateRecord `json:"core"`
	ThirdParty []updates.UpdateRecord `json:"third_party"`
}

func (s *Server) handleListUpdates(w http.ResponseWriter, _ *http.Request) {
	snap := s.monitor.Current()
	if snap == nil {
		writeNoSnapshot(w)
		return
	}
	writeJSON(w, http.StatusOK, updatesOf(snap))
}

func updatesOf(snap *monitor.Snapshot) updatesResponse {
	core, third := snap.Updates.Core, snap.Updates.ThirdParty
	if core == nil {
		core = []updates.UpdateRecord{}
	}
	if third == nil {
		third = []updates.UpdateRecord{}
	}
	return updatesResponse{
		pollInfo:   pollInfoOf(snap),
		Total:      len(core) + len(third),
		Core:       core,
		ThirdParty: third,
	}
}

type installRequest struct {
	Backup bool `json:"backup"`
}

func (s *Server) handleInstallUpdate(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	details := map[string]any{"backup": req.Backup}
	s.runUpdateAction(w, r, audit.ActionUpdateInstall, details, func(id string) error {
		return s.updates.Install(r.Context(), id, req.Backup)
	})
}

func (s *Server) handleSkipUpdate(w http.ResponseWriter, r *http.Request) {
	s.runUpdateAction(w, r, audit.ActionUpdateSkip, nil, func(id string) error {
		return s.updates.Skip(r.Context(), id)
	})
}

func (s *Server) handleClearSkipped(w http.ResponseWriter, r *http.Request) {
	s.runUpdateAction(w, r, audit.ActionUpdateClearSkipped, nil, func(id string) error {
		return s.updates.ClearSkipped(r.Context(), id)
	})
}

// runUpdateAction calls fn for the entity in the path and, on success, asks
// for a refresh so the update list reflects the new state.
func (s *Server) runUpdateAction(w http.ResponseWriter, r *http.Request, action string, details map[string]any, fn func(entityID string) error) {
	if s.updates == nil {
		writeNotFound(w, "update actions are not available")
		return
	}
	entityID, ok := pathParam(r, "entityID")
	if !ok {
		writeBadRequest(w, "invalid entity id")
		return
	}

	err := fn(entityID)
	s.recordAction(r, action, entityID, details, err)
	if err != nil {
		s.logger.Warn("update action failed", "action", action, "entity_id", entityID, "error", err)
		writeServiceError(w, err)
		return
	}

	s.logger.Info("update action requested", "action", action, "entity_id", entityID)
	s.monitor.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"action":    action,
		"entity_id": entityID,
	})
}

// pathParam returns the unescaped chi URL parameter.
func pathParam(r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}
