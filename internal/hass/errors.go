package hass

import "errors"

// Domain-specific errors for Home Assistant operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when a command is issued on a closed client.
	ErrNotConnected = errors.New("hass: client not connected")

	// ErrConnectionFailed is returned when the WebSocket dial or handshake fails.
	ErrConnectionFailed = errors.New("hass: connection failed")

	// ErrAuthFailed is returned when Home Assistant rejects the access token.
	ErrAuthFailed = errors.New("hass: authentication failed")

	// ErrCommandFailed is returned when Home Assistant answers a command with success=false.
	ErrCommandFailed = errors.New("hass: command failed")

	// ErrTimeout is returned when no result arrives within the request timeout.
	ErrTimeout = errors.New("hass: request timed out")

	// ErrInvalidEntity is returned when an entity id is empty or has the wrong domain.
	ErrInvalidEntity = errors.New("hass: invalid entity id")
)
