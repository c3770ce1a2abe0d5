// ABOUTME: Storage Document - named ordered collections of records for one meeting
// ABOUTME: Collections are maps keyed by id with an explicit order index, not positional lists

package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Mutation and decode errors. Everything else in this package is a silent
// no-op: update/delete against a missing id must absorb the
// delete-vs-inflight-update race instead of surfacing it.
var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrDuplicateRecord   = errors.New("record id already exists")
	ErrMissingRecordID   = errors.New("record id is required")
	ErrInvalidFields     = errors.New("invalid field payload")
)

// Collection is one ordered set of records, keyed by id. Display order comes
// from each record's order index; ids tie-break so iteration is stable.
type Collection struct {
	name string
	byID map[string]Record
}

func newCollection(name string) *Collection {
	return &Collection{name: name, byID: make(map[string]Record)}
}

// Name returns the collection's wire name.
func (c *Collection) Name() string { return c.name }

// Len returns the number of records.
func (c *Collection) Len() int { return len(c.byID) }

// Get returns the record with the given id.
func (c *Collection) Get(id string) (Record, bool) {
	rec, ok := c.byID[id]
	return rec, ok
}

// Records returns all records sorted by order index, id as tie-break.
func (c *Collection) Records() []Record {
	out := make([]Record, 0, len(c.byID))
	for _, rec := range c.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order() != out[j].Order() {
			return out[i].Order() < out[j].Order()
		}
		return out[i].RecordID() < out[j].RecordID()
	})
	return out
}

// NextOrder returns the order index one past the current tail.
func (c *Collection) NextOrder() int {
	next := 0
	for _, rec := range c.byID {
		if rec.Order() >= next {
			next = rec.Order() + 1
		}
	}
	return next
}

// Insert appends a record. A record arriving with an order index at or past
// the current tail keeps it (carry-forward persists the index before the
// push); anything else is assigned the next index. Fails on duplicate id.
func (c *Collection) Insert(rec Record) error {
	id := rec.RecordID()
	if id == "" {
		return ErrMissingRecordID
	}
	if _, exists := c.byID[id]; exists {
		return fmt.Errorf("%w: %s in %s", ErrDuplicateRecord, id, c.name)
	}
	if next := c.NextOrder(); rec.Order() < next {
		rec.SetOrder(next)
	}
	c.byID[id] = rec
	return nil
}

// UpdateFields merges a partial JSON payload into the record with the given
// id. Returns (nil, false, nil) when the id is absent: a no-op success, not
// an error, so an update racing a delete never crashes the room.
//
// The merge happens on a copy and only commits on success. A payload that
// fails to decode (a type mismatch half-applies with encoding/json) returns
// ErrInvalidFields and leaves the live record untouched.
func (c *Collection) UpdateFields(id string, fields json.RawMessage) (Record, bool, error) {
	rec, ok := c.byID[id]
	if !ok {
		return nil, false, nil
	}
	merged := rec.Clone()
	if err := json.Unmarshal(fields, merged); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidFields, err)
	}
	// Identity and ordering are not updatable through field merges.
	if merged.RecordID() != rec.RecordID() {
		c.restoreID(merged, rec.RecordID())
	}
	merged.SetOrder(rec.Order())
	c.byID[id] = merged
	return merged, true, nil
}

func (c *Collection) restoreID(rec Record, id string) {
	type idSetter interface{ setID(string) }
	if s, ok := rec.(idSetter); ok {
		s.setID(id)
	}
}

// Delete removes the record if present. Absent ids are a no-op success.
func (c *Collection) Delete(id string) bool {
	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	return true
}

// Reorder assigns positions 0..n-1 to the supplied ids, in supplied order,
// skipping ids no longer present (deleted mid-drag by another editor).
// Records omitted from the list keep their own order index untouched.
// Returns the ids that were actually repositioned.
func (c *Collection) Reorder(ids []string) []string {
	applied := make([]string, 0, len(ids))
	pos := 0
	for _, id := range ids {
		rec, ok := c.byID[id]
		if !ok {
			continue
		}
		rec.SetOrder(pos)
		pos++
		applied = append(applied, id)
	}
	return applied
}

// Document is the live Storage Document for one room: metadata plus the nine
// live collections. Exactly one Document is live per room; mutate it only
// through the owning room's serialized apply path.
type Document struct {
	ID          string    `json:"id"`
	FolderID    string    `json:"folderId"`
	Title       string    `json:"title"`
	MeetingDate time.Time `json:"meetingDate"`
	WeekNumber  int       `json:"weekNumber"`

	collections map[string]*Collection
}

// New creates an empty Document with all live collections present.
func New(id, folderID, title string, meetingDate time.Time, weekNumber int) *Document {
	d := &Document{
		ID:          id,
		FolderID:    folderID,
		Title:       title,
		MeetingDate: meetingDate,
		WeekNumber:  weekNumber,
		collections: make(map[string]*Collection, len(LiveCollections)),
	}
	for _, name := range LiveCollections {
		d.collections[name] = newCollection(name)
	}
	return d
}

// Collection returns the named live collection.
func (d *Document) Collection(name string) (*Collection, bool) {
	c, ok := d.collections[name]
	return c, ok
}

// Insert adds a record to the named collection.
func (d *Document) Insert(collection string, rec Record) error {
	c, ok := d.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return c.Insert(rec)
}

// UpdateFields merges partial fields into a record. Missing ids no-op;
// undecodable payloads return ErrInvalidFields without touching the record.
func (d *Document) UpdateFields(collection, id string, fields json.RawMessage) (Record, bool, error) {
	c, ok := d.collections[collection]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return c.UpdateFields(id, fields)
}

// Delete removes a record. Missing ids no-op.
func (d *Document) Delete(collection, id string) (bool, error) {
	c, ok := d.collections[collection]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return c.Delete(id), nil
}

// Reorder repositions the supplied ids within a collection.
func (d *Document) Reorder(collection string, ids []string) ([]string, error) {
	c, ok := d.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return c.Reorder(ids), nil
}

// Snapshot is the JSON shape pushed to a client on join.
type Snapshot struct {
	ID          string              `json:"id"`
	FolderID    string              `json:"folderId"`
	Title       string              `json:"title"`
	MeetingDate time.Time           `json:"meetingDate"`
	WeekNumber  int                 `json:"weekNumber"`
	Collections map[string][]Record `json:"collections"`
}

// Snapshot returns a point-in-time copy of the document with every live
// collection present (empty slices, never absent). Records are cloned, so
// the snapshot can be read or marshaled after the live document moves on.
func (d *Document) Snapshot() *Snapshot {
	snap := &Snapshot{
		ID:          d.ID,
		FolderID:    d.FolderID,
		Title:       d.Title,
		MeetingDate: d.MeetingDate,
		WeekNumber:  d.WeekNumber,
		Collections: make(map[string][]Record, len(d.collections)),
	}
	for name, c := range d.collections {
		recs := c.Records()
		out := make([]Record, len(recs))
		for i, rec := range recs {
			out[i] = rec.Clone()
		}
		snap.Collections[name] = out
	}
	return snap
}
