package offline

import (
	"time"

	"github.com/nerrad567/hamonitor/internal/hass"
)

// OfflineDevice is a device whose every reporting entity is unavailable.
type OfflineDevice struct {
	DeviceID     string `json:"device_id"`
	Name         string `json:"name"`
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	AreaID       string `json:"area_id,omitempty"`
	Icon         string `json:"icon"`

	// LastUpdated is the newest last_updated among the device's entities.
	// Zero when none of them has a live state.
	LastUpdated time.Time `json:"last_updated"`

	// Entities are the device's non-disabled registrations.
	Entities []hass.EntityRegistration `json:"entities"`
}

// OfflineEntity is an unavailable entity not covered by an OfflineDevice.
type OfflineEntity struct {
	EntityID    string    `json:"entity_id"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	LastChanged time.Time `json:"last_changed"`
	LastUpdated time.Time `json:"last_updated"`
	Icon        string    `json:"icon"`
	DeviceClass string    `json:"device_class,omitempty"`
	Unit        string    `json:"unit_of_measurement,omitempty"`
	DeviceID    string    `json:"device_id,omitempty"`
	Platform    string    `json:"platform,omitempty"`
}

// Result is the outcome of one offline derivation.
//
// Known is false when the input data could not be fetched. The lists are then
// empty and mean "nothing is known yet", not "everything is online".
type Result struct {
	Known    bool            `json:"known"`
	Devices  []OfflineDevice `json:"devices"`
	Entities []OfflineEntity `json:"entities"`
}

// Unknown returns the result reported when registry or state data is missing.
func Unknown() Result {
	return Result{Known: false, Devices: []OfflineDevice{}, Entities: []OfflineEntity{}}
}

// StateReader looks up the live state of an entity. *hass.Snapshot satisfies it.
type StateReader interface {
	State(entityID string) (hass.EntityState, bool)
}
