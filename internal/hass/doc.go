// Package hass is a client for the Home Assistant WebSocket API.
//
// It covers the commands the monitor needs: entity states, the device and
// entity registries, service calls and to-do list items. Results are
// decoded into the types in this package and can be assembled into an
// immutable Snapshot.
//
// Usage:
//
//	client, err := hass.Connect(ctx, cfg.HomeAssistant)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	states, err := client.GetStates(ctx)
package hass
