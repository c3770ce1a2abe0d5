// ABOUTME: Event and Mutation types flowing between rooms, connections, and the broadcaster
// ABOUTME: Events carry a per-room sequence number so every subscriber observes applied order

package room

import (
	"encoding/json"

	"github.com/2389/huddle-sync/internal/document"
)

// Op is a mutation kind.
type Op string

// Mutation kinds, matching the wire "op" field.
const (
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpReorder Op = "reorder"
)

// Event types, matching the wire "type" field.
const (
	EventMutation     = "mutation"
	EventPresence     = "presence"
	EventPresenceGone = "presence_gone"
)

// Mutation is one named operation against a room's Storage Document.
// Origin is the subscription id of the submitting connection; it is excluded
// from the fan-out since that client already applied the change locally.
type Mutation struct {
	Op         Op
	Collection string
	Record     document.Record // insert
	RecordID   string          // update, delete
	Fields     json.RawMessage // update
	Order      []string        // reorder
	Origin     string

	// durableDone marks a mutation that was already persisted by the caller
	// (carry-forward writes durably before pushing into the live room), so
	// the room's persist queue must not write it again.
	durableDone bool
}

// Event is what subscribers receive. Mutation events carry a monotonically
// increasing per-room sequence number; presence events carry none, since
// presence is advisory and has no ordering requirement.
type Event struct {
	Seq  int64  `json:"seq,omitempty"`
	Type string `json:"type"`

	// mutation events
	Collection string          `json:"collection,omitempty"`
	Op         Op              `json:"op,omitempty"`
	Record     document.Record `json:"record,omitempty"`
	RecordID   string          `json:"recordId,omitempty"`
	Fields     json.RawMessage `json:"fields,omitempty"`
	Order      []string        `json:"order,omitempty"`

	// presence events
	Presence     *Presence `json:"presence,omitempty"`
	ConnectionID string    `json:"connectionId,omitempty"`
}
