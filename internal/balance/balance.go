// Package balance reads prepaid balance sensors (electricity, water, gas
// top-ups and the like) and flags readings below a warning threshold.
package balance

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/hamonitor/internal/hass"
)

const defaultIcon = "mdi:cash"

// Entity is a configured balance sensor.
type Entity struct {
	EntityID string
	// Name overrides the sensor's friendly name when set.
	Name string
	// Warning marks the reading low when the value drops below it.
	Warning *float64
}

// Reading is the current value of a balance sensor.
type Reading struct {
	EntityID    string    `json:"entity_id"`
	Name        string    `json:"name"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit,omitempty"`
	Icon        string    `json:"icon"`
	Available   bool      `json:"available"`
	Low         bool      `json:"low"`
	Warning     *float64  `json:"warning,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// StateReader looks up the live state of an entity.
type StateReader interface {
	State(entityID string) (hass.EntityState, bool)
}

// Reader produces readings for a fixed list of entities.
type Reader struct {
	entities []Entity
}

// NewReader returns a Reader for entities, kept in the given order.
func NewReader(entities []Entity) *Reader {
	return &Reader{entities: append([]Entity(nil), entities...)}
}

// Read returns one reading per configured entity. Missing, unavailable or
// non-numeric states produce a reading with Available false.
func (r *Reader) Read(states StateReader) []Reading {
	out := make([]Reading, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, read(e, states))
	}
	return out
}

// LowCount returns how many readings are below their warning threshold.
func LowCount(readings []Reading) int {
	n := 0
	for _, rd := range readings {
		if rd.Low {
			n++
		}
	}
	return n
}

func read(e Entity, states StateReader) Reading {
	rd := Reading{
		EntityID: e.EntityID,
		Name:     e.Name,
		Icon:     defaultIcon,
		Warning:  e.Warning,
	}

	st, ok := states.State(e.EntityID)
	if !ok {
		if rd.Name == "" {
			rd.Name = e.EntityID
		}
		return rd
	}

	if rd.Name == "" {
		rd.Name = st.FriendlyName()
	}
	if icon, ok := st.Attr("icon"); ok && icon != "" {
		rd.Icon = icon
	}
	rd.Unit, _ = st.Attr("unit_of_measurement")
	rd.LastUpdated = st.LastUpdated

	value, err := strconv.ParseFloat(strings.TrimSpace(st.State), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return rd
	}

	rd.Value = value
	rd.Available = true
	rd.Low = e.Warning != nil && value < *e.Warning
	return rd
}
