// Package gateway orchestrates the huddle-sync server: the HTTP server, the
// WebSocket room endpoint, the REST API, and component lifecycle.
//
// # WebSocket Protocol
//
// Clients join a room at GET /ws/{documentId}, presenting a room grant as a
// bearer token (or ?token= for browser clients). After the handshake the
// server pushes a snapshot frame:
//
//	{"type": "snapshot", "seq": N, "document": {...}, "presence": [...]}
//
// and then streams events: mutation frames carrying a per-room sequence
// number, presence frames, and presence_gone frames. Clients send mutation
// and presence frames; rejected frames get an error frame back without
// closing the connection.
//
// # HTTP API
//
//   - POST /api/rooms/{documentId}/token - mint a room grant
//   - POST /api/documents - create a document
//   - GET/POST /api/documents/{id}/backlog - backlog notes
//   - PATCH/DELETE /api/documents/{id}/backlog/{noteId}
//   - GET/POST /api/documents/{id}/carryforward - carry-forward
//   - GET /api/documents/{id}/export - Markdown/HTML export
//   - GET /health, GET /health/ready
//
// API routes are guarded by the configured service token; the WebSocket
// endpoint is guarded per-room by the grant itself.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown stops the HTTP server, disposes every live room (draining their
// persist queues), and closes the store. With tailscale.enabled the gateway
// serves on a tsnet node instead of a TCP listener.
package gateway
