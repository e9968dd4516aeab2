package offline

import (
	"sort"
	"time"

	"github.com/nerrad567/hamonitor/internal/hass"
	"github.com/nerrad567/hamonitor/internal/pattern"
)

// Options configures exclusions for a Builder.
type Options struct {
	// ExcludeDevices are matched against device display names.
	ExcludeDevices []string
	// ExcludeEntities are matched against entity ids.
	ExcludeEntities []string
}

// Builder derives the offline device and entity lists.
// It holds only precompiled patterns and is safe for concurrent use.
type Builder struct {
	excludeDevices  *pattern.Set
	excludeEntities *pattern.Set
}

// NewBuilder compiles the exclusion patterns once.
func NewBuilder(opts Options) *Builder {
	return &Builder{
		excludeDevices:  pattern.NewSet(opts.ExcludeDevices),
		excludeEntities: pattern.NewSet(opts.ExcludeEntities),
	}
}

// BuildSnapshot runs Build over a snapshot. A nil snapshot yields Unknown().
func (b *Builder) BuildSnapshot(snap *hass.Snapshot) Result {
	if snap == nil {
		return Unknown()
	}
	return b.Build(snap.Devices, snap.Entities, snap)
}

// Build derives the offline lists.
//
// Devices are evaluated with IsDeviceOffline, filtered by display name and
// ordered by their newest entity update. Entities are then scanned on their
// own: an unavailable entity is listed unless it is disabled, has no state,
// matches an entity exclusion, belongs to an excluded device or is already
// listed under an offline device. Both lists are newest first; ties keep
// registry order. A nil states, including a nil *hass.Snapshot, yields
// Unknown().
func (b *Builder) Build(devices []hass.Device, regs []hass.EntityRegistration, states StateReader) Result {
	if states == nil {
		return Unknown()
	}
	if snap, ok := states.(*hass.Snapshot); ok && snap == nil {
		return Unknown()
	}

	byDevice := make(map[string][]hass.EntityRegistration)
	for _, reg := range regs {
		if id := reg.Owner(); id != "" {
			byDevice[id] = append(byDevice[id], reg)
		}
	}

	excludedDevices := make(map[string]struct{})
	offlineDevices := make([]OfflineDevice, 0)

	for _, device := range devices {
		deviceRegs := byDevice[device.ID]
		if !IsDeviceOffline(device, deviceRegs, states) {
			continue
		}

		name := device.DisplayName()
		if b.excludeDevices.Match(name) {
			excludedDevices[device.ID] = struct{}{}
			continue
		}

		offlineDevices = append(offlineDevices, newOfflineDevice(device, name, deviceRegs, states))
	}

	sort.SliceStable(offlineDevices, func(i, j int) bool {
		return offlineDevices[i].LastUpdated.After(offlineDevices[j].LastUpdated)
	})

	covered := make(map[string]struct{})
	for _, d := range offlineDevices {
		for _, reg := range d.Entities {
			covered[reg.EntityID] = struct{}{}
		}
	}

	offlineEntities := make([]OfflineEntity, 0)
	for _, reg := range regs {
		if reg.Disabled() {
			continue
		}
		st, ok := states.State(reg.EntityID)
		if !ok {
			continue
		}
		if b.excludeEntities.Match(reg.EntityID) {
			continue
		}
		if _, ok := excludedDevices[reg.Owner()]; ok {
			continue
		}
		if _, ok := covered[reg.EntityID]; ok {
			continue
		}
		if st.State != hass.StateUnavailable {
			continue
		}
		offlineEntities = append(offlineEntities, newOfflineEntity(reg, st))
	}

	sort.SliceStable(offlineEntities, func(i, j int) bool {
		return offlineEntities[i].LastUpdated.After(offlineEntities[j].LastUpdated)
	})

	return Result{Known: true, Devices: offlineDevices, Entities: offlineEntities}
}

func newOfflineDevice(device hass.Device, name string, regs []hass.EntityRegistration, states StateReader) OfflineDevice {
	active := make([]hass.EntityRegistration, 0, len(regs))
	var newest time.Time
	for _, reg := range regs {
		if reg.Disabled() {
			continue
		}
		active = append(active, reg)
		if st, ok := states.State(reg.EntityID); ok && st.LastUpdated.After(newest) {
			newest = st.LastUpdated
		}
	}

	return OfflineDevice{
		DeviceID:     device.ID,
		Name:         name,
		Model:        deref(device.Model),
		Manufacturer: deref(device.Manufacturer),
		AreaID:       deref(device.AreaID),
		Icon:         deviceIcon(device, active, states),
		LastUpdated:  newest,
		Entities:     active,
	}
}

func newOfflineEntity(reg hass.EntityRegistration, st hass.EntityState) OfflineEntity {
	e := OfflineEntity{
		EntityID:    reg.EntityID,
		Name:        entityName(reg, st),
		State:       st.State,
		LastChanged: st.LastChanged,
		LastUpdated: st.LastUpdated,
		Icon:        entityIcon(reg, st),
		DeviceID:    reg.Owner(),
		Platform:    reg.Platform,
	}
	e.DeviceClass, _ = st.Attr("device_class")
	e.Unit, _ = st.Attr("unit_of_measurement")
	return e
}

// entityName prefers friendly_name, then the registry names, then the id.
func entityName(reg hass.EntityRegistration, st hass.EntityState) string {
	if name, ok := st.Attr("friendly_name"); ok && name != "" {
		return name
	}
	if v := deref(reg.Name); v != "" {
		return v
	}
	if v := deref(reg.OriginalName); v != "" {
		return v
	}
	return reg.EntityID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
