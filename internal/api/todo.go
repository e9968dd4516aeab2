package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/hamonitor/internal/audit"
	"github.com/nerrad567/hamonitor/internal/todo"
)

func (s *Server) handleListTodoEntities(w http.ResponseWriter, _ *http.Request) {
	if s.todo == nil {
		writeNotFound(w, "to-do lists are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": s.todo.Entities()})
}

// todoEntity resolves the list id from the path, writing an error response
// when it cannot.
func (s *Server) todoEntity(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.todo == nil {
		writeNotFound(w, "to-do lists are not configured")
		return "", false
	}
	entityID, ok := pathParam(r, "entityID")
	if !ok {
		writeBadRequest(w, "invalid entity id")
		return "", false
	}
	return entityID, true
}

func (s *Server) handleListTodoItems(w http.ResponseWriter, r *http.Request) {
	entityID, ok := s.todoEntity(w, r)
	if !ok {
		return
	}
	items, err := s.todo.List(r.Context(), entityID)
	if err != nil {
		s.logger.Warn("listing to-do items failed", "entity_id", entityID, "error", err)
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []todo.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity_id": entityID, "items": items})
}

func (s *Server) handleAddTodoItem(w http.ResponseWriter, r *http.Request) {
	entityID, ok := s.todoEntity(w, r)
	if !ok {
		return
	}
	var req todo.NewItem
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	err := s.todo.Add(r.Context(), entityID, req)
	s.recordAction(r, audit.ActionTodoAdd, entityID, map[string]any{"summary": req.Summary}, err)
	if err != nil {
		s.logger.Warn("adding to-do item failed", "entity_id", entityID, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "entity_id": entityID})
}

func (s *Server) handleUpdateTodoItem(w http.ResponseWriter, r *http.Request) {
	entityID, ok := s.todoEntity(w, r)
	if !ok {
		return
	}
	item, ok := pathParam(r, "item")
	if !ok {
		writeBadRequest(w, "invalid item")
		return
	}
	var change todo.Change
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	err := s.todo.Update(r.Context(), entityID, item, change)
	s.recordAction(r, audit.ActionTodoUpdate, entityID, changeDetails(item, change), err)
	if err != nil {
		s.logger.Warn("updating to-do item failed", "entity_id", entityID, "item", item, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "entity_id": entityID, "item": item})
}

func (s *Server) handleRemoveTodoItem(w http.ResponseWriter, r *http.Request) {
	entityID, ok := s.todoEntity(w, r)
	if !ok {
		return
	}
	item, ok := pathParam(r, "item")
	if !ok {
		writeBadRequest(w, "invalid item")
		return
	}
	err := s.todo.Remove(r.Context(), entityID, item)
	s.recordAction(r, audit.ActionTodoRemove, entityID, map[string]any{"item": item}, err)
	if err != nil {
		s.logger.Warn("removing to-do item failed", "entity_id", entityID, "item", item, "error", err)
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// changeDetails lists the fields an update touched.
func changeDetails(item string, c todo.Change) map[string]any {
	d := map[string]any{"item": item}
	if c.Rename != nil {
		d["rename"] = *c.Rename
	}
	if c.Status != nil {
		d["status"] = *c.Status
	}
	if c.Description != nil {
		d["description"] = *c.Description
	}
	if c.Due != nil {
		d["due"] = *c.Due
	}
	return d
}
