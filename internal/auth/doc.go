// Package auth provides room-access grants and service-token checking.
//
// # Room Grants
//
// Joins are authorized by short-lived HS256 JWTs scoped to a single room:
// the "sub" claim names the principal and the "room" claim names the one
// room the grant opens. A grant for another room fails verification with
// ErrRoomAccessDenied, so access is per-document, never global.
//
// # Service Token
//
// The REST API (grant minting, backlog, carry-forward, export) is guarded
// by a service token checked against a bcrypt hash from configuration. The
// upstream user/session system holds the real identities; this gateway only
// ever sees principal ids it is handed.
package auth
