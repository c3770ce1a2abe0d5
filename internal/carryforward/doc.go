// Package carryforward copies selected items from the previous document in
// a folder into the current one.
//
// Candidates resolves the chronologically previous document (meeting date,
// creation time as tie-break) and returns its items for a mode grouped by
// owner; no previous document is an empty result, not an error. CarryForward
// creates a fresh durable copy of each selected item (new id, order index
// appended after the current document's items, done state reset for action
// items) and pushes it into the live room when one is up. Each item is
// independent: partial failure reports a success count and rolls nothing
// back.
package carryforward
