// Package room implements the live synchronization layer: rooms, the room
// registry, the broadcaster, and presence.
//
// # Room
//
// A Room owns one Storage Document, one presence table, and the set of
// active connections. It is the single serialization domain for its
// document: every mutation is applied under one mutex in arrival order, so
// concurrent edits to the same record never interleave partially.
//
// Mutation flow:
//
//  1. Apply validates and applies the mutation in memory
//  2. The event is broadcast to every other connection, stamped with a
//     monotonically increasing per-room sequence number
//  3. The durable write is queued and performed off the hot path by a
//     single per-room worker, preserving apply order
//
// Durable failures are logged and never roll back the broadcast state: the
// in-memory document is the source of truth for live collaborators, and the
// durable store converges on the next room creation.
//
// # Registry
//
// The Registry maps room ids to live rooms. Rooms are created lazily on
// first join (loading the durable snapshot exactly once, even under
// concurrent joins) and disposed when the last connection leaves. Room ids
// derive deterministically from document ids via Name, so no two rooms ever
// hold the same document.
//
// # Broadcaster
//
// The Broadcaster fans events out to per-connection buffered channels.
// Publishes never block: a subscriber that cannot keep up has events
// dropped rather than stalling the room.
//
// # Presence
//
// Presence entries are ephemeral per-connection state, created on join,
// mutated only by the owning connection, and destroyed immediately on
// close. Presence updates are broadcast directly and never queued behind
// persistence.
package room
