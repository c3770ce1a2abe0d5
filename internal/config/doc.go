// Package config handles configuration loading for huddle-sync.
//
// Configuration is YAML with ${VAR_NAME} environment variable expansion and
// Go duration syntax for time values:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	database:
//	  path: "/var/lib/huddle/sync.db"
//	auth:
//	  jwt_secret: "${HUDDLE_JWT_SECRET}"
//	  service_token_hash: "${HUDDLE_SERVICE_TOKEN_HASH}"
//	  grant_ttl: "15m"
//	tailscale:
//	  enabled: false
//	  hostname: "huddle-sync"
//	logging:
//	  level: "info"
//	  format: "text"
//
// Load validates that an HTTP address (or Tailscale), a database path, and
// a JWT secret are configured.
package config
