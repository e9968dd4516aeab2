package offline

import "github.com/nerrad567/hamonitor/internal/hass"

// IsDeviceOffline reports whether a device should be shown as offline.
//
// Registrations that are disabled or have no live state are ignored. A
// disabled device is never offline. A device left with no registrations is
// offline. Otherwise the device is offline only when none of its entities
// reports a state other than "unavailable".
func IsDeviceOffline(device hass.Device, regs []hass.EntityRegistration, states StateReader) bool {
	if device.Disabled() {
		return false
	}

	for _, reg := range regs {
		if reg.Disabled() {
			continue
		}
		st, ok := states.State(reg.EntityID)
		if !ok {
			continue
		}
		if st.State != hass.StateUnavailable {
			return false
		}
	}

	return true
}
