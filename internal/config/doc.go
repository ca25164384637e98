// Package config handles configuration loading for helpline-gateway.
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
//	knowledge_base:
//	  api_key: "${HELPLINE_KB_KEY}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	knowledge_base:
//	  timeout: "10s"
//	escalation:
//	  delivery_timeout: "30s"
//	dedupe:
//	  ttl: "10m"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"            # Inbound turn webhook
//	  connector_url: "http://bridge:9090"   # Frontend connector API
//	  connector_token: "${CONNECTOR_TOKEN}"
//
// Database:
//
//	database:
//	  path: "/var/lib/helpline/gateway.db"
//
// Knowledge base:
//
//	knowledge_base:
//	  endpoint: "http://kb:7000"
//	  api_key: "${HELPLINE_KB_KEY}"
//	  timeout: "10s"
//
// Escalation:
//
//	escalation:
//	  expert_team_id: "!experts:example.org"
//	  delivery_timeout: "30s"
//
// Tailscale (optional, replaces the plain HTTP listener):
//
//	tailscale:
//	  enabled: true
//	  hostname: "helpline"
//	  auth_key: "${TS_AUTHKEY}"
//	  state_dir: "/var/lib/helpline/tsnet"
package config
