// Package config handles configuration loading for mentor-gateway.
//
// # Configuration File
//
// The binary looks for its config file in order:
//
//  1. Path from the MENTOR_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/mentor/gateway.yaml
//  3. ~/.config/mentor/gateway.yaml
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${MENTOR_JWT_SECRET}"
//
// MENTOR_DB_PATH, when set, overrides database.path.
//
// # Durations
//
// Durations use time.ParseDuration syntax:
//
//	agents:
//	  timeout: "30s"
//	idempotency:
//	  ttl: "10m"
//
// # Sections
//
//	server:      http_addr, dev_mode
//	database:    driver (sqlite|sqlite3), path
//	auth:        jwt_secret (>= 32 bytes)
//	agents:      backend (scripted|anthropic), api_key, base_url, model, max_tokens, timeout
//	history:     context_window (10), display_limit (20), max_page_limit (1000)
//	idempotency: ttl (10m), max_entries (1024)
//	logging:     level, format (text|json)
package config
