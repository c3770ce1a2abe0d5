// ABOUTME: Carry-forward engine - copies selected items from the previous document
// ABOUTME: in a folder into the current one, durably first, then into the live room

package carryforward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/2389/huddle-sync/internal/document"
	"github.com/2389/huddle-sync/internal/store"
)

// Mode selects which section carries forward.
type Mode string

const (
	// ModeTodos carries prior-week action items. Items carry regardless of
	// completion state so a team can track persistent stragglers; the copy's
	// done state is reset.
	ModeTodos Mode = "todos"
	// ModeRocks carries quarterly goals, status included.
	ModeRocks Mode = "rocks"
)

// ErrUnknownMode is returned for a mode outside {todos, rocks}.
var ErrUnknownMode = errors.New("unknown carry-forward mode")

// Collection returns the collection a mode reads from and writes to.
func (m Mode) Collection() (string, error) {
	switch m {
	case ModeTodos:
		return document.CollectionPriorTodos, nil
	case ModeRocks:
		return document.CollectionRocks, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownMode, m)
	}
}

// Store is the durable side the engine needs: folder resolution, collection
// reads, and record creation.
type Store interface {
	GetDocument(ctx context.Context, id string) (*store.DocumentInfo, error)
	ListFolderDocuments(ctx context.Context, folderID string) ([]*store.DocumentInfo, error)
	ListRecords(ctx context.Context, documentID, collection string) ([]document.Record, error)
	SaveRecord(ctx context.Context, documentID, collection string, rec document.Record) error
}

// Live is the engine's view of the room layer: order reservation and pushing
// already-persisted records into a live document.
type Live interface {
	NextOrder(documentID, collection string) (int, bool)
	PushRecord(ctx context.Context, documentID, collection string, rec document.Record) bool
}

// OwnerGroup is one owner's candidate items, in source display order.
type OwnerGroup struct {
	Owner   string            `json:"owner"`
	Records []document.Record `json:"records"`
}

// CandidateSet is a read-only snapshot of the previous document's items for
// one mode. SourceDocumentID is empty when the folder holds no previous
// document, which is a legitimate empty result, not an error.
type CandidateSet struct {
	SourceDocumentID string       `json:"sourceDocumentId"`
	Mode             Mode         `json:"mode"`
	Groups           []OwnerGroup `json:"groups"`

	records []document.Record
}

// Empty reports whether there is nothing to carry forward.
func (c *CandidateSet) Empty() bool { return len(c.records) == 0 }

// Result reports a carry-forward batch. Succeeded can be less than Requested:
// each item's creation is independent and partial success is acceptable.
type Result struct {
	Requested int               `json:"requested"`
	Succeeded int               `json:"succeeded"`
	Records   []document.Record `json:"records"`
}

// Engine performs carry-forward batches against the durable store and the
// live room layer.
type Engine struct {
	store  Store
	live   Live
	logger *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(st Store, live Live, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		live:   live,
		logger: logger.With("component", "carry-forward"),
	}
}

// Candidates resolves the chronologically previous document in the current
// document's folder and returns its items for the mode, grouped by owner.
func (e *Engine) Candidates(ctx context.Context, currentDocumentID string, mode Mode) (*CandidateSet, error) {
	collection, err := mode.Collection()
	if err != nil {
		return nil, err
	}

	current, err := e.store.GetDocument(ctx, currentDocumentID)
	if err != nil {
		return nil, fmt.Errorf("resolving document %s: %w", currentDocumentID, err)
	}

	prev, err := e.previousDocument(ctx, current)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return &CandidateSet{Mode: mode}, nil
	}

	records, err := e.store.ListRecords(ctx, prev.ID, collection)
	if err != nil {
		return nil, fmt.Errorf("loading %s from %s: %w", collection, prev.ID, err)
	}

	return &CandidateSet{
		SourceDocumentID: prev.ID,
		Mode:             mode,
		Groups:           groupByOwner(records),
		records:          records,
	}, nil
}

// CarryForward copies the selected items onto the current document. An empty
// selection means all candidates. Each copy gets a fresh id and an order
// index appended after the current document's existing items, is persisted
// durably first, and is then pushed into the live room if one is up.
func (e *Engine) CarryForward(ctx context.Context, currentDocumentID string, mode Mode, selected []string) (*Result, error) {
	collection, err := mode.Collection()
	if err != nil {
		return nil, err
	}

	candidates, err := e.Candidates(ctx, currentDocumentID, mode)
	if err != nil {
		return nil, err
	}

	picked := pick(candidates.records, selected)
	result := &Result{Requested: len(picked)}
	if len(picked) == 0 {
		return result, nil
	}

	next, err := e.nextOrder(ctx, currentDocumentID, collection)
	if err != nil {
		return nil, err
	}

	for _, src := range picked {
		rec, err := copyRecord(mode, src)
		if err != nil {
			e.logger.Warn("skipping candidate",
				"source_id", src.RecordID(),
				"error", err)
			continue
		}
		rec.SetOrder(next)
		next++

		if err := e.store.SaveRecord(ctx, currentDocumentID, collection, rec); err != nil {
			// Earlier successes stay; each item is independent.
			e.logger.Error("carry-forward save failed",
				"document_id", currentDocumentID,
				"source_id", src.RecordID(),
				"error", err)
			continue
		}

		result.Succeeded++
		result.Records = append(result.Records, rec)
		// The room takes ownership of whatever it inserts, so it gets its
		// own copy; result.Records stays safe to serialize.
		e.live.PushRecord(ctx, currentDocumentID, collection, rec.Clone())
	}

	e.logger.Info("carry-forward complete",
		"document_id", currentDocumentID,
		"mode", string(mode),
		"requested", result.Requested,
		"succeeded", result.Succeeded)
	return result, nil
}

// previousDocument finds the folder entry immediately before the current
// document in chronological order, or nil when the current one is first.
func (e *Engine) previousDocument(ctx context.Context, current *store.DocumentInfo) (*store.DocumentInfo, error) {
	docs, err := e.store.ListFolderDocuments(ctx, current.FolderID)
	if err != nil {
		return nil, fmt.Errorf("listing folder %s: %w", current.FolderID, err)
	}
	for i, d := range docs {
		if d.ID == current.ID {
			if i == 0 {
				return nil, nil
			}
			return docs[i-1], nil
		}
	}
	return nil, fmt.Errorf("document %s not in folder %s", current.ID, current.FolderID)
}

// nextOrder reserves the first appended order index on the current document:
// the live room's tail when one is up, otherwise computed from the store.
func (e *Engine) nextOrder(ctx context.Context, documentID, collection string) (int, error) {
	if next, live := e.live.NextOrder(documentID, collection); live {
		return next, nil
	}
	existing, err := e.store.ListRecords(ctx, documentID, collection)
	if err != nil {
		return 0, fmt.Errorf("loading %s from %s: %w", collection, documentID, err)
	}
	next := 0
	for _, rec := range existing {
		if rec.Order() >= next {
			next = rec.Order() + 1
		}
	}
	return next, nil
}

// pick filters candidates by the selected ids, preserving source order. A nil
// or empty selection keeps everything.
func pick(records []document.Record, selected []string) []document.Record {
	if len(selected) == 0 {
		return records
	}
	want := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		want[id] = struct{}{}
	}
	out := make([]document.Record, 0, len(selected))
	for _, rec := range records {
		if _, ok := want[rec.RecordID()]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// copyRecord builds the fresh-identity copy of one candidate. User-visible
// fields carry over; completion state resets for action items.
func copyRecord(mode Mode, src document.Record) (document.Record, error) {
	switch mode {
	case ModeTodos:
		todo, ok := src.(*document.Todo)
		if !ok {
			return nil, fmt.Errorf("unexpected record type %T for mode %s", src, mode)
		}
		return &document.Todo{
			RecordMeta:  document.RecordMeta{ID: uuid.NewString()},
			Text:        todo.Text,
			Owner:       todo.Owner,
			CarriedFrom: todo.RecordID(),
		}, nil
	case ModeRocks:
		rock, ok := src.(*document.Rock)
		if !ok {
			return nil, fmt.Errorf("unexpected record type %T for mode %s", src, mode)
		}
		return &document.Rock{
			RecordMeta: document.RecordMeta{ID: uuid.NewString()},
			Title:      rock.Title,
			Owner:      rock.Owner,
			Status:     rock.Status,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
}

func groupByOwner(records []document.Record) []OwnerGroup {
	byOwner := make(map[string][]document.Record)
	for _, rec := range records {
		owner := ""
		if owned, ok := rec.(document.Owned); ok {
			owner = owned.OwnerName()
		}
		byOwner[owner] = append(byOwner[owner], rec)
	}

	owners := make([]string, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	groups := make([]OwnerGroup, 0, len(owners))
	for _, owner := range owners {
		groups = append(groups, OwnerGroup{Owner: owner, Records: byOwner[owner]})
	}
	return groups
}
