// Package server exposes mailsense over HTTP.
//
// # Key Components
//
// ServerContext holds the session store, broadcast bus, authorization
// orchestrator and workflow service shared by the HTTP and MCP surfaces.
//
// Server routes:
//   - /api/auth/*: start, cancel and inspect the authorization flow
//   - /api/session/*: the session record, profile and reset
//   - /api/history, /api/style, /api/generate, /api/refine: workflow steps
//   - /ws/session: a live session view per WebSocket connection
//   - /oauth/callback and /auth/complete: the provider round trip
//   - /healthz, /readyz, /healthz/detailed: liveness and readiness
//
// MetricsServer serves Prometheus metrics on a dedicated port.
//
// # Identity
//
// Callers are anonymous. The identity middleware reads the user id from
// the X-Mailsense-User header or the mailsense_uid cookie and creates a
// session on first contact.
package server
