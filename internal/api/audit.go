package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/hamonitor/internal/audit"
)

// recordAction writes an audit entry for a service call. Failures to record
// are logged and never change the response.
func (s *Server) recordAction(r *http.Request, action, entityID string, details map[string]any, actionErr error) {
	if s.audit == nil {
		return
	}
	subject, _ := r.Context().Value(ctxKeySubject).(string) //nolint:errcheck // empty when unauthenticated
	e := &audit.Entry{
		Action:   action,
		EntityID: entityID,
		Subject:  subject,
		Source:   audit.SourceAPI,
		Details:  details,
	}
	if actionErr != nil {
		e.Error = actionErr.Error()
	}
	if err := s.audit.Create(r.Context(), e); err != nil {
		s.logger.Warn("recording audit entry failed", "action", action, "entity_id", entityID, "error", err)
	}
}

// handleAudit lists recorded actions. Query: action, entity_id, limit, offset.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit log is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		EntityID: q.Get("entity_id"),
	}
	var ok bool
	if filter.Limit, ok = queryInt(q.Get("limit")); !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, ok = queryInt(q.Get("offset")); !ok {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("reading audit log failed", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// queryInt parses an optional non-negative integer; "" yields 0.
func queryInt(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
