// Package config handles loading and validating hamonitor configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file for local development
//   - Overriding with HAMONITOR_* environment variables
//   - Validation of required fields and card options
//
// Security Considerations:
//   - The Home Assistant token and JWT secret should come from the environment
//   - The card theme is a closed enum; arbitrary strings are rejected
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.HomeAssistant.URL)
package config
