package hass

import (
	"strings"
	"time"
)

// StateUnavailable is the sentinel state Home Assistant reports for an
// entity whose integration cannot reach it.
const StateUnavailable = "unavailable"

// EntityState is the live state of one entity as returned by get_states.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Domain returns the part of the entity id before the first dot.
func (s EntityState) Domain() string {
	return Domain(s.EntityID)
}

// Unavailable reports whether the entity is in the unavailable state.
func (s EntityState) Unavailable() bool {
	return s.State == StateUnavailable
}

// Attr returns a string attribute. The second result is false when the
// attribute is absent, null or not a string.
func (s EntityState) Attr(key string) (string, bool) {
	v, ok := s.Attributes[key]
	if !ok || v == nil {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// FriendlyName returns the friendly_name attribute, falling back to the entity id.
func (s EntityState) FriendlyName() string {
	if name, ok := s.Attr("friendly_name"); ok && name != "" {
		return name
	}
	return s.EntityID
}

// EntityRegistration is one row of the entity registry.
type EntityRegistration struct {
	EntityID string `json:"entity_id"`
	Platform string `json:"platform"`

	// DeviceID is nil for entities that do not belong to a device.
	DeviceID *string `json:"device_id"`

	// DisabledBy is nil when the entity is enabled. A non-nil value names the
	// source that disabled it ("user", "integration", "config_entry").
	DisabledBy *string `json:"disabled_by"`

	Name         *string `json:"name"`
	OriginalName *string `json:"original_name"`
	Icon         *string `json:"icon"`
	OriginalIcon *string `json:"original_icon"`
}

// Disabled reports whether the registration is disabled.
func (r EntityRegistration) Disabled() bool {
	return r.DisabledBy != nil
}

// Owner returns the owning device id, or "" for standalone entities.
func (r EntityRegistration) Owner() string {
	if r.DeviceID == nil {
		return ""
	}
	return *r.DeviceID
}

// ResolvedIcon returns the user icon, else the integration icon, else "".
func (r EntityRegistration) ResolvedIcon() string {
	if v := deref(r.Icon); v != "" {
		return v
	}
	return deref(r.OriginalIcon)
}

// Device is one row of the device registry.
type Device struct {
	ID           string  `json:"id"`
	Name         *string `json:"name"`
	NameByUser   *string `json:"name_by_user"`
	Model        *string `json:"model"`
	Manufacturer *string `json:"manufacturer"`
	AreaID       *string `json:"area_id"`
	DisabledBy   *string `json:"disabled_by"`
	Icon         *string `json:"icon,omitempty"`
}

// Disabled reports whether the device is disabled.
func (d Device) Disabled() bool {
	return d.DisabledBy != nil
}

// deviceIDPrefixLen is how many characters of the id the fallback name keeps.
const deviceIDPrefixLen = 8

// DisplayName returns the best available name for the device: the name set by
// the user, then the integration name, then "Device " plus a short id prefix.
func (d Device) DisplayName() string {
	if v := deref(d.NameByUser); v != "" {
		return v
	}
	if v := deref(d.Name); v != "" {
		return v
	}
	id := d.ID
	if len(id) > deviceIDPrefixLen {
		id = id[:deviceIDPrefixLen]
	}
	return "Device " + id
}

// TodoItem is one item of a to-do list entity.
type TodoItem struct {
	UID         string  `json:"uid"`
	Summary     string  `json:"summary"`
	Status      string  `json:"status"`
	Due         *string `json:"due,omitempty"`
	Description *string `json:"description,omitempty"`
}

// To-do item statuses.
const (
	TodoStatusNeedsAction = "needs_action"
	TodoStatusCompleted   = "completed"
)

// Target selects the entities a service call acts on.
type Target struct {
	EntityID []string `json:"entity_id,omitempty"`
}

// EntityTarget returns a Target for a single entity.
func EntityTarget(entityID string) Target {
	return Target{EntityID: []string{entityID}}
}

// Domain returns the domain part of an entity id ("sensor" for "sensor.x").
func Domain(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		return entityID[:i]
	}
	return ""
}

// deref returns the pointed-to string or "".
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
