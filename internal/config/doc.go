// Package config handles configuration loading for the Draftroom client.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${DRAFTROOM_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	assistant:
//	  min_reveal_delay: "15ms"
//	  max_reveal_delay: "60ms"
//	  history_poll_interval: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server endpoints:
//
//	server:
//	  base_url: "https://draftroom.example.com"
//	  feed_url: "wss://draftroom.example.com/api/events"  # optional
//
// Authentication:
//
//	auth:
//	  token: "${DRAFTROOM_TOKEN}"  # required
//
// Local snapshot storage:
//
//	storage:
//	  path: "~/.local/share/draftroom/history.db"  # empty = in-memory
//
// Assistant behavior:
//
//	assistant:
//	  streaming: true
//	  scope: ["transcripts", "papers", "references"]
//	  min_reveal_delay: "15ms"
//	  max_reveal_delay: "60ms"
//	  history_poll_interval: "30s"
//
// Document excerpts:
//
//	document:
//	  max_chars: 0  # 0 = built-in budget
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - server.base_url and auth.token presence
//   - scope category names
//   - reveal delay ordering and duration format validity
package config
