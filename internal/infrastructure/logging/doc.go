// Package logging provides structured logging for hamonitor.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text when debugging, with service and version fields on every
// entry.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log the Home Assistant token or the JWT secret.
package logging
