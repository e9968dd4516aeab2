package todo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/hamonitor/internal/duedate"
	"github.com/nerrad567/hamonitor/internal/hass"
)

const dateOnlyLayout = "2006-01-02"

// Client is the subset of the Home Assistant client the manager uses.
type Client interface {
	ListTodoItems(ctx context.Context, entityID string) ([]hass.TodoItem, error)
	CallService(ctx context.Context, domain, service string, data map[string]any, target hass.Target) error
}

// Item is a to-do item with its due date rendered for display.
type Item struct {
	UID         string  `json:"uid"`
	Summary     string  `json:"summary"`
	Status      string  `json:"status"`
	Due         *string `json:"due,omitempty"`
	Description *string `json:"description,omitempty"`
	DueLabel    string  `json:"due_label"`
	Overdue     bool    `json:"overdue"`
}

// NewItem describes an item to add.
type NewItem struct {
	Summary     string  `json:"summary"`
	Description *string `json:"description,omitempty"`
	Due         *string `json:"due,omitempty"`
}

// Change describes an update to an existing item. Nil fields are left as is.
type Change struct {
	Rename      *string `json:"rename,omitempty"`
	Status      *string `json:"status,omitempty"`
	Description *string `json:"description,omitempty"`
	Due         *string `json:"due,omitempty"`
}

// Manager lists and edits to-do list entities.
type Manager struct {
	client    Client
	formatter *duedate.Formatter
	allowed   map[string]struct{}
}

// NewManager returns a Manager. When entities is non-empty only those lists
// may be read or changed.
func NewManager(client Client, formatter *duedate.Formatter, entities []string) *Manager {
	m := &Manager{
		client:    client,
		formatter: formatter,
	}
	if len(entities) > 0 {
		m.allowed = make(map[string]struct{}, len(entities))
		for _, e := range entities {
			m.allowed[e] = struct{}{}
		}
	}
	return m
}

// Entities returns the configured list ids, sorted.
func (m *Manager) Entities() []string {
	out := make([]string, 0, len(m.allowed))
	for e := range m.allowed {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) check(entityID string) error {
	if !strings.HasPrefix(entityID, "todo.") || len(entityID) == len("todo.") {
		return fmt.Errorf("%w: %q", ErrInvalidEntity, entityID)
	}
	if m.allowed != nil {
		if _, ok := m.allowed[entityID]; !ok {
			return fmt.Errorf("%w: %q", ErrEntityNotAllowed, entityID)
		}
	}
	return nil
}

// List returns the items of a list: open items first, then by due date
// (undated last), then by summary.
func (m *Manager) List(ctx context.Context, entityID string) ([]Item, error) {
	if err := m.check(entityID); err != nil {
		return nil, err
	}

	raw, err := m.client.ListTodoItems(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", entityID, err)
	}

	items := make([]Item, 0, len(raw))
	for _, it := range raw {
		items = append(items, m.decorate(it))
	}
	sortItems(items)
	return items, nil
}

func (m *Manager) decorate(it hass.TodoItem) Item {
	open := it.Status != hass.TodoStatusCompleted
	item := Item{
		UID:         it.UID,
		Summary:     it.Summary,
		Status:      it.Status,
		Due:         it.Due,
		Description: it.Description,
		DueLabel:    m.formatter.FormatPtr(it.Due, open),
	}
	if open && it.Due != nil {
		if days, ok := m.formatter.DaysUntil(*it.Due); ok {
			item.Overdue = days < 0
		}
	}
	return item
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		aOpen := a.Status != hass.TodoStatusCompleted
		bOpen := b.Status != hass.TodoStatusCompleted
		if aOpen != bOpen {
			return aOpen
		}

		ad, aok := dueTime(a.Due)
		bd, bok := dueTime(b.Due)
		if aok != bok {
			return aok
		}
		if aok && !ad.Equal(bd) {
			return ad.Before(bd)
		}

		return strings.ToLower(a.Summary) < strings.ToLower(b.Summary)
	})
}

func dueTime(due *string) (time.Time, bool) {
	if due == nil {
		return time.Time{}, false
	}
	return duedate.Parse(*due, time.Local)
}

// Add creates a new item.
func (m *Manager) Add(ctx context.Context, entityID string, item NewItem) error {
	if err := m.check(entityID); err != nil {
		return err
	}
	summary := strings.TrimSpace(item.Summary)
	if summary == "" {
		return ErrEmptySummary
	}

	data := map[string]any{"item": summary}
	if item.Description != nil {
		data["description"] = *item.Description
	}
	if item.Due != nil {
		if err := putDue(data, *item.Due); err != nil {
			return err
		}
	}
	return m.call(ctx, "add_item", entityID, data)
}

// Update changes an item identified by uid or summary.
func (m *Manager) Update(ctx context.Context, entityID, item string, change Change) error {
	if err := m.check(entityID); err != nil {
		return err
	}
	if strings.TrimSpace(item) == "" {
		return ErrEmptyItem
	}

	data := map[string]any{"item": item}
	if change.Rename != nil {
		rename := strings.TrimSpace(*change.Rename)
		if rename == "" {
			return ErrEmptySummary
		}
		data["rename"] = rename
	}
	if change.Status != nil {
		switch *change.Status {
		case hass.TodoStatusNeedsAction, hass.TodoStatusCompleted:
			data["status"] = *change.Status
		default:
			return fmt.Errorf("%w: %q", ErrInvalidStatus, *change.Status)
		}
	}
	if change.Description != nil {
		data["description"] = *change.Description
	}
	if change.Due != nil {
		if err := putDue(data, *change.Due); err != nil {
			return err
		}
	}
	if len(data) == 1 {
		return ErrNoChanges
	}
	return m.call(ctx, "update_item", entityID, data)
}

// Complete marks an item as completed.
func (m *Manager) Complete(ctx context.Context, entityID, item string) error {
	status := hass.TodoStatusCompleted
	return m.Update(ctx, entityID, item, Change{Status: &status})
}

// Reopen marks an item as needing action again.
func (m *Manager) Reopen(ctx context.Context, entityID, item string) error {
	status := hass.TodoStatusNeedsAction
	return m.Update(ctx, entityID, item, Change{Status: &status})
}

// Remove deletes an item identified by uid or summary.
func (m *Manager) Remove(ctx context.Context, entityID, item string) error {
	if err := m.check(entityID); err != nil {
		return err
	}
	if strings.TrimSpace(item) == "" {
		return ErrEmptyItem
	}
	return m.call(ctx, "remove_item", entityID, map[string]any{"item": []string{item}})
}

func (m *Manager) call(ctx context.Context, service, entityID string, data map[string]any) error {
	if err := m.client.CallService(ctx, "todo", service, data, hass.EntityTarget(entityID)); err != nil {
		return fmt.Errorf("todo.%s on %s: %w", service, entityID, err)
	}
	return nil
}

// putDue stores a due value as due_date for plain dates and due_datetime
// for timestamps.
func putDue(data map[string]any, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDue)
	}
	if _, err := time.Parse(dateOnlyLayout, raw); err == nil {
		data["due_date"] = raw
		return nil
	}
	t, ok := duedate.Parse(raw, time.Local)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDue, raw)
	}
	data["due_datetime"] = t.In(time.Local).Format("2006-01-02 15:04:05")
	return nil
}
