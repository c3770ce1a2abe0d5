// ABOUTME: Room - the single serialization domain for one live Storage Document
// ABOUTME: Applies mutations in arrival order, broadcasts them, and persists off the hot path

package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/huddle-sync/internal/document"
)

// ErrRoomClosed is returned when a mutation reaches a room after its last
// connection left and the registry disposed it.
var ErrRoomClosed = errors.New("room closed")

// persistQueueSize bounds the out-of-band durable write queue. Apply blocks
// when it fills, which backpressures writers instead of losing writes.
const persistQueueSize = 256

// DurableStore defines what a room needs from the persistence bridge for
// the durable side of each mutation.
type DurableStore interface {
	SaveRecord(ctx context.Context, documentID, collection string, rec document.Record) error
	UpdateRecordFields(ctx context.Context, documentID, collection, id string, fields []byte) error
	DeleteRecord(ctx context.Context, documentID, collection, id string) error
	UpdateOrder(ctx context.Context, documentID, collection string, order map[string]int) error
}

// Room owns one Storage Document, one presence table, and the set of active
// connections. All mutations are applied under one mutex in arrival order;
// no two mutations interleave partially. Broadcast happens while the mutex
// is held (publishes are non-blocking) so subscribers observe events in
// exactly the applied order.
type Room struct {
	id         string
	documentID string

	mu     sync.Mutex
	doc    *document.Document
	seq    int64
	conns  map[string]struct{}
	closed bool

	presence    *PresenceTable
	broadcaster *Broadcaster
	store       DurableStore

	persistCh chan persistJob
	done      chan struct{}
	drained   chan struct{}

	logger *slog.Logger
}

type persistJob struct {
	op         Op
	collection string
	record     document.Record
	recordID   string
	fields     []byte
	order      map[string]int
}

func newRoom(id, documentID string, doc *document.Document, store DurableStore, broadcaster *Broadcaster, logger *slog.Logger) *Room {
	r := &Room{
		id:          id,
		documentID:  documentID,
		doc:         doc,
		conns:       make(map[string]struct{}),
		presence:    NewPresenceTable(),
		broadcaster: broadcaster,
		store:       store,
		persistCh:   make(chan persistJob, persistQueueSize),
		done:        make(chan struct{}),
		drained:     make(chan struct{}),
		logger:      logger.With("component", "room", "room_id", id),
	}
	go r.persistLoop()
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// DocumentID returns the backing document id.
func (r *Room) DocumentID() string { return r.documentID }

// Snapshot returns a point-in-time copy of the document, the presence list,
// and the sequence number of the last applied mutation. The copy is detached
// from the live document and safe to marshal after the mutex is released.
// Clients discard broadcast events at or below the returned sequence.
func (r *Room) Snapshot() (*document.Snapshot, []Presence, int64) {
	r.mu.Lock()
	snap := r.doc.Snapshot()
	seq := r.seq
	r.mu.Unlock()
	return snap, r.presence.List(), seq
}

// Apply validates and applies one mutation, broadcasts it to every other
// connection, and queues the durable write. The caller is suspended only
// until the in-memory apply; persistence happens out-of-band.
//
// Stale-target updates and deletes return (nil, nil): absorbed, never
// broadcast, never surfaced as errors.
func (r *Room) Apply(ctx context.Context, m Mutation) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRoomClosed
	}

	event := &Event{Type: EventMutation, Collection: m.Collection, Op: m.Op}
	job := persistJob{op: m.Op, collection: m.Collection}

	switch m.Op {
	case OpInsert:
		if m.Record == nil {
			return nil, document.ErrMissingRecordID
		}
		if err := r.doc.Insert(m.Collection, m.Record); err != nil {
			return nil, err
		}
		// The live document owns m.Record from here on; the broadcaster and
		// the persist queue read a detached copy outside the mutex.
		copied := m.Record.Clone()
		event.Record = copied
		job.record = copied

	case OpUpdate:
		rec, changed, err := r.doc.UpdateFields(m.Collection, m.RecordID, m.Fields)
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, nil
		}
		event.RecordID = rec.RecordID()
		event.Fields = m.Fields
		job.recordID = m.RecordID
		job.fields = m.Fields

	case OpDelete:
		removed, err := r.doc.Delete(m.Collection, m.RecordID)
		if err != nil {
			return nil, err
		}
		if !removed {
			return nil, nil
		}
		event.RecordID = m.RecordID
		job.recordID = m.RecordID

	case OpReorder:
		applied, err := r.doc.Reorder(m.Collection, m.Order)
		if err != nil {
			return nil, err
		}
		if len(applied) == 0 {
			return nil, nil
		}
		event.Order = applied
		job.order = make(map[string]int, len(applied))
		for i, id := range applied {
			job.order[id] = i
		}

	default:
		return nil, fmt.Errorf("unknown mutation op %q", m.Op)
	}

	r.seq++
	event.Seq = r.seq
	r.broadcaster.Publish(r.id, event, m.Origin)

	if !m.durableDone {
		// Enqueued under the room mutex so durable writes land in apply
		// order. Blocks only when the queue is full.
		r.persistCh <- job
	}
	return event, nil
}

// NextOrder returns the order index the next insert into the collection
// would receive. Used by carry-forward to persist before pushing.
func (r *Room) NextOrder(collection string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.doc.Collection(collection)
	if !ok {
		return 0, fmt.Errorf("%w: %s", document.ErrUnknownCollection, collection)
	}
	return c.NextOrder(), nil
}

// SetPresence merges a partial presence update into the connection's own
// entry and broadcasts the refreshed entry. Never queued behind persistence.
func (r *Room) SetPresence(connectionID string, update PresenceUpdate, origin string) {
	entry, ok := r.presence.Set(connectionID, update)
	if !ok {
		return
	}
	r.broadcaster.Publish(r.id, &Event{
		Type:     EventPresence,
		Presence: &entry,
	}, origin)
}

// addConnection registers a connection and announces its presence.
func (r *Room) addConnection(connectionID string, identity Identity, origin string) {
	r.mu.Lock()
	r.conns[connectionID] = struct{}{}
	r.mu.Unlock()

	entry := r.presence.Add(connectionID, identity)
	r.broadcaster.Publish(r.id, &Event{
		Type:     EventPresence,
		Presence: &entry,
	}, origin)
}

// removeConnection drops a connection and its presence entry, announcing the
// departure. Returns true when the room has no connections left.
func (r *Room) removeConnection(connectionID string) bool {
	r.mu.Lock()
	delete(r.conns, connectionID)
	empty := len(r.conns) == 0
	r.mu.Unlock()

	if r.presence.Remove(connectionID) {
		r.broadcaster.Publish(r.id, &Event{
			Type:         EventPresenceGone,
			ConnectionID: connectionID,
		}, "")
	}
	return empty
}

// ConnectionCount returns the number of active connections.
func (r *Room) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Roster returns the display names currently present in the room.
func (r *Room) Roster() []string {
	return r.presence.Roster()
}

// close marks the room closed and waits for queued durable writes to land.
// Disposal performs no durable writes of its own: everything durable was
// already persisted incrementally.
func (r *Room) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	<-r.drained
	r.logger.Debug("room disposed")
}

// persistLoop is the single consumer of the durable write queue. One worker
// per room keeps durable writes in apply order. Failures are logged and
// never roll back the already-broadcast in-memory state; the durable store
// converges on the next room creation.
func (r *Room) persistLoop() {
	defer close(r.drained)
	for {
		select {
		case job := <-r.persistCh:
			r.persist(job)
		case <-r.done:
			// Drain whatever was queued before disposal.
			for {
				select {
				case job := <-r.persistCh:
					r.persist(job)
				default:
					return
				}
			}
		}
	}
}

// persist applies one durable write with its own timeout context, so
// persistence continues even when the submitting request is long gone.
func (r *Room) persist(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch job.op {
	case OpInsert:
		err = r.store.SaveRecord(ctx, r.documentID, job.collection, job.record)
	case OpUpdate:
		err = r.store.UpdateRecordFields(ctx, r.documentID, job.collection, job.recordID, job.fields)
	case OpDelete:
		err = r.store.DeleteRecord(ctx, r.documentID, job.collection, job.recordID)
	case OpReorder:
		err = r.store.UpdateOrder(ctx, r.documentID, job.collection, job.order)
	}
	if err != nil {
		r.logger.Error("durable write failed",
			"op", string(job.op),
			"collection", job.collection,
			"error", err)
	}
}
