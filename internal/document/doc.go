// Package document defines the record model and the Storage Document: the
// in-memory aggregate of named ordered collections backing one meeting.
//
// # Collections
//
// A meeting document has nine live sections, each an ordered collection of
// typed records:
//
//   - segueNotes: free-form check-in notes
//   - scorecardValues: weekly metric measurements
//   - rocks: quarterly goals with status
//   - priorTodos / newTodos: action items (same Todo shape)
//   - issues: discussion items
//   - positiveFeedback / negativeFeedback: retro feedback
//   - retroScores: 1-10 meeting ratings
//
// The backlogNotes collection is store-only: it is read from the durable
// store on demand and never part of a live Document.
//
// # Ordering
//
// Collections are maps keyed by record id with an explicit order index on
// each record, not positional lists. Display order sorts by (orderIndex, id).
// Insert assigns the next index past the current tail unless the record
// arrives already carrying one at or past it.
//
// # Mutation Semantics
//
// Insert rejects duplicate ids. UpdateFields merges on a copy and commits
// only on success, so an undecodable payload is rejected with
// ErrInvalidFields instead of half-applying. UpdateFields and Delete are
// no-op successes when the id is absent, which absorbs the
// delete-vs-inflight-update race. Reorder renumbers only the ids still
// present, silently dropping the rest.
//
// A Document is not safe for concurrent use: exactly one is live per room,
// and the owning room serializes all access.
package document
