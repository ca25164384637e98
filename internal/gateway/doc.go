// Package gateway implements the helpline-gateway server.
//
// # Overview
//
// The gateway is the hub between frontend connectors and the conversation
// core. Connectors (like helpline-matrix) post each user event to the
// inbound webhook; the router answers from the knowledge base or escalates
// to the expert team; outbound activity flows back through the connector's
// HTTP API.
//
// # Inbound API
//
//	POST /api/turns            user turns and member_added events
//	GET  /api/turns/events     audit ledger for a conversation
//	GET  /api/tickets          escalation tickets
//	GET  /api/config           runtime configuration entities
//	POST /api/config           update a configuration entity
//
// # Health Endpoints
//
//	GET /health        liveness (always 200 while serving)
//	GET /health/ready  readiness (store reachable)
//
// # Dedupe
//
// Webhook deliveries are at-least-once. Each turn is identified by its
// conversation-scoped message ID and dropped when redelivered within the
// dedupe TTL.
//
// # Listeners
//
// The gateway listens on a plain TCP address, or joins a tailnet via tsnet
// when tailscale.enabled is set.
package gateway
