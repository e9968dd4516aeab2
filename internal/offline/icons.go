package offline

import "github.com/nerrad567/hamonitor/internal/hass"

const (
	defaultDeviceIcon = "mdi:devices"
	defaultEntityIcon = "mdi:help-circle-outline"
)

var domainIcons = map[string]string{
	"alarm_control_panel": "mdi:shield-home",
	"binary_sensor":       "mdi:radiobox-blank",
	"button":              "mdi:gesture-tap-button",
	"camera":              "mdi:video",
	"climate":             "mdi:thermostat",
	"cover":               "mdi:window-shutter",
	"device_tracker":      "mdi:account",
	"fan":                 "mdi:fan",
	"humidifier":          "mdi:air-humidifier",
	"light":               "mdi:lightbulb",
	"lock":                "mdi:lock",
	"media_player":        "mdi:cast",
	"number":              "mdi:ray-vertex",
	"remote":              "mdi:remote",
	"select":              "mdi:format-list-bulleted",
	"sensor":              "mdi:eye",
	"siren":               "mdi:bullhorn",
	"switch":              "mdi:toggle-switch-variant",
	"todo":                "mdi:clipboard-list",
	"update":              "mdi:package-up",
	"vacuum":              "mdi:robot-vacuum",
	"valve":               "mdi:valve",
	"water_heater":        "mdi:thermometer",
}

// entityIcon picks registry icon, then state icon, then a domain default.
func entityIcon(reg hass.EntityRegistration, st hass.EntityState) string {
	if icon := reg.ResolvedIcon(); icon != "" {
		return icon
	}
	if icon, ok := st.Attr("icon"); ok && icon != "" {
		return icon
	}
	if icon, ok := domainIcons[hass.Domain(reg.EntityID)]; ok {
		return icon
	}
	return defaultEntityIcon
}

// deviceIcon uses the device's own icon, then the icon of its first entity
// with a live state.
func deviceIcon(device hass.Device, regs []hass.EntityRegistration, states StateReader) string {
	if device.Icon != nil && *device.Icon != "" {
		return *device.Icon
	}
	for _, reg := range regs {
		if st, ok := states.State(reg.EntityID); ok {
			return entityIcon(reg, st)
		}
	}
	return defaultDeviceIcon
}
