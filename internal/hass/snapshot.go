package hass

import (
	"sort"
	"strings"
	"time"
)

// Snapshot is an immutable view of Home Assistant taken by one poll: every
// entity state plus both registries.
//
// A Snapshot is never updated in place. The next poll builds a new one.
type Snapshot struct {
	states    map[string]EntityState
	Devices   []Device
	Entities  []EntityRegistration
	FetchedAt time.Time
}

// NewSnapshot indexes states by entity id. Later duplicates win.
func NewSnapshot(states []EntityState, devices []Device, entities []EntityRegistration, fetchedAt time.Time) *Snapshot {
	idx := make(map[string]EntityState, len(states))
	for _, s := range states {
		idx[s.EntityID] = s
	}
	return &Snapshot{
		states:    idx,
		Devices:   devices,
		Entities:  entities,
		FetchedAt: fetchedAt,
	}
}

// State returns the live state of an entity.
func (s *Snapshot) State(entityID string) (EntityState, bool) {
	if s == nil {
		return EntityState{}, false
	}
	st, ok := s.states[entityID]
	return st, ok
}

// StateCount returns the number of entity states in the snapshot.
func (s *Snapshot) StateCount() int {
	if s == nil {
		return 0
	}
	return len(s.states)
}

// StatesWithPrefix returns the states whose id starts with prefix, ordered by id.
func (s *Snapshot) StatesWithPrefix(prefix string) []EntityState {
	if s == nil {
		return nil
	}
	var out []EntityState
	for id, st := range s.states {
		if strings.HasPrefix(id, prefix) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}
