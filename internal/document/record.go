// ABOUTME: Record types for the nine live meeting-document sections plus the store-only backlog
// ABOUTME: Every record carries a stable id and an explicit order index via RecordMeta

package document

import (
	"encoding/json"
	"fmt"
)

// Collection names. These are the wire names used in mutation frames,
// snapshot payloads, and the records table.
const (
	CollectionSegueNotes       = "segueNotes"
	CollectionScorecard        = "scorecardValues"
	CollectionRocks            = "rocks"
	CollectionPriorTodos       = "priorTodos"
	CollectionIssues           = "issues"
	CollectionNewTodos         = "newTodos"
	CollectionPositiveFeedback = "positiveFeedback"
	CollectionNegativeFeedback = "negativeFeedback"
	CollectionRetroScores      = "retroScores"

	// CollectionBacklog is sourced from the durable store on every read and
	// is never part of the live synchronized document.
	CollectionBacklog = "backlogNotes"
)

// LiveCollections lists the collections that make up a live Storage Document,
// in display order. The backlog is deliberately absent.
var LiveCollections = []string{
	CollectionSegueNotes,
	CollectionScorecard,
	CollectionRocks,
	CollectionPriorTodos,
	CollectionIssues,
	CollectionNewTodos,
	CollectionPositiveFeedback,
	CollectionNegativeFeedback,
	CollectionRetroScores,
}

// Record is a single ordered entry in one collection. Clone returns a
// detached copy; record fields are plain values, so a shallow struct copy is
// a full one.
type Record interface {
	RecordID() string
	Order() int
	SetOrder(int)
	Clone() Record
}

// Owned is implemented by records that reference an owning user from the
// room's roster. Used for the owner column and carry-forward grouping.
type Owned interface {
	OwnerName() string
}

// RecordMeta holds the fields common to every record. Embed it in each
// section type.
type RecordMeta struct {
	ID         string `json:"id"`
	OrderIndex int    `json:"orderIndex"`
}

func (m *RecordMeta) RecordID() string { return m.ID }
func (m *RecordMeta) Order() int       { return m.OrderIndex }
func (m *RecordMeta) SetOrder(i int)   { m.OrderIndex = i }
func (m *RecordMeta) setID(id string)  { m.ID = id }

// SegueNote is a free-form check-in note at the top of the meeting.
type SegueNote struct {
	RecordMeta
	Author string `json:"author"`
	Text   string `json:"text"`
}

func (s *SegueNote) Clone() Record { c := *s; return &c }

// ScorecardValue is one weekly measurement of an owned metric.
type ScorecardValue struct {
	RecordMeta
	Metric string `json:"metric"`
	Owner  string `json:"owner"`
	Target string `json:"target"`
	Value  string `json:"value"`
}

func (s *ScorecardValue) OwnerName() string { return s.Owner }
func (s *ScorecardValue) Clone() Record     { c := *s; return &c }

// Rock is a quarterly goal with an on-track/off-track status.
type Rock struct {
	RecordMeta
	Title  string `json:"title"`
	Owner  string `json:"owner"`
	Status string `json:"status"`
}

func (r *Rock) OwnerName() string { return r.Owner }
func (r *Rock) Clone() Record     { c := *r; return &c }

// Todo is an action item. The same shape backs both the prior-week list and
// the new items created during the meeting. CarriedFrom links a record
// created by carry-forward back to its source item.
type Todo struct {
	RecordMeta
	Text        string `json:"text"`
	Owner       string `json:"owner"`
	Done        bool   `json:"done"`
	CarriedFrom string `json:"carriedFrom,omitempty"`
}

func (t *Todo) OwnerName() string { return t.Owner }
func (t *Todo) Clone() Record     { c := *t; return &c }

// Issue is a discussion item on the issues list.
type Issue struct {
	RecordMeta
	Text     string `json:"text"`
	Owner    string `json:"owner"`
	Resolved bool   `json:"resolved"`
}

func (i *Issue) OwnerName() string { return i.Owner }
func (i *Issue) Clone() Record     { c := *i; return &c }

// RetroFeedback is one piece of retro feedback. Whether it is positive or
// negative is determined by the collection it lives in.
type RetroFeedback struct {
	RecordMeta
	Author string `json:"author"`
	Text   string `json:"text"`
}

func (r *RetroFeedback) Clone() Record { c := *r; return &c }

// RetroScore is one participant's 1-10 rating of the meeting.
type RetroScore struct {
	RecordMeta
	Author string `json:"author"`
	Score  int    `json:"score"`
}

func (r *RetroScore) Clone() Record { c := *r; return &c }

// BacklogNote is a miscellaneous parked item. Store-only, never live-synced.
type BacklogNote struct {
	RecordMeta
	Text  string `json:"text"`
	Owner string `json:"owner"`
}

func (b *BacklogNote) OwnerName() string { return b.Owner }
func (b *BacklogNote) Clone() Record     { c := *b; return &c }

// NewRecord returns a zero record of the right type for the collection.
func NewRecord(collection string) (Record, error) {
	switch collection {
	case CollectionSegueNotes:
		return &SegueNote{}, nil
	case CollectionScorecard:
		return &ScorecardValue{}, nil
	case CollectionRocks:
		return &Rock{}, nil
	case CollectionPriorTodos, CollectionNewTodos:
		return &Todo{}, nil
	case CollectionIssues:
		return &Issue{}, nil
	case CollectionPositiveFeedback, CollectionNegativeFeedback:
		return &RetroFeedback{}, nil
	case CollectionRetroScores:
		return &RetroScore{}, nil
	case CollectionBacklog:
		return &BacklogNote{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
}

// DecodeRecord unmarshals a wire payload into a typed record for the
// collection. The payload must carry a non-empty id.
func DecodeRecord(collection string, payload []byte) (Record, error) {
	rec, err := NewRecord(collection)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, rec); err != nil {
		return nil, fmt.Errorf("decoding %s record: %w", collection, err)
	}
	if rec.RecordID() == "" {
		return nil, ErrMissingRecordID
	}
	return rec, nil
}
