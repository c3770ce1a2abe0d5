// ABOUTME: Process-wide registry mapping room ids to live Room instances
// ABOUTME: Creates rooms lazily on first join, disposes them when the last connection leaves

package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/huddle-sync/internal/document"
)

// Name derives the room identifier for a document. Join handshakes present
// this exact name, and registry keying on it guarantees no two rooms ever
// hold the same document concurrently.
func Name(documentID string) string {
	return "huddle-document-" + documentID
}

// Store is what the registry needs from the persistence bridge: a snapshot
// load at room creation plus the per-mutation durable writes.
type Store interface {
	LoadSnapshot(ctx context.Context, documentID string) (*document.Document, error)
	DurableStore
}

// Registry owns all live rooms. The registry mutex is the create-or-fetch
// critical section: it spans the snapshot load, so concurrent joins for one
// document create exactly one Room.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	store       Store
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		store:       store,
		broadcaster: NewBroadcaster(logger),
		logger:      logger.With("component", "room-registry"),
	}
}

// Join resolves or creates the room for a document and registers the
// connection. The first join loads the durable snapshot; authorization has
// already happened at the boundary, so an unauthorized document never gets
// this far and never creates a room.
func (g *Registry) Join(ctx context.Context, documentID, connectionID string, identity Identity, origin string) (*Room, error) {
	roomID := Name(documentID)

	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		doc, err := g.store.LoadSnapshot(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot for %s: %w", documentID, err)
		}
		r = newRoom(roomID, documentID, doc, g.store, g.broadcaster, g.logger)
		g.rooms[roomID] = r
		g.logger.Info("room created", "room_id", roomID)
	}

	r.addConnection(connectionID, identity, origin)
	return r, nil
}

// Leave removes the connection from its room. The last leave disposes the
// room: in-memory state is discarded, no durable writes happen beyond what
// the persist queue already holds.
func (g *Registry) Leave(roomID, connectionID string) {
	g.mu.Lock()
	r, ok := g.rooms[roomID]
	if !ok {
		g.mu.Unlock()
		return
	}
	empty := r.removeConnection(connectionID)
	if empty {
		delete(g.rooms, roomID)
	}
	g.mu.Unlock()

	if empty {
		r.close()
		g.logger.Info("room disposed", "room_id", roomID)
	}
}

// Subscribe registers for a room's event stream.
func (g *Registry) Subscribe(ctx context.Context, roomID string) (<-chan *Event, string) {
	return g.broadcaster.Subscribe(ctx, roomID)
}

// Unsubscribe removes an event stream subscription.
func (g *Registry) Unsubscribe(roomID, subID string) {
	g.broadcaster.Unsubscribe(roomID, subID)
}

// Room returns the live room for a room id, if one exists.
func (g *Registry) Room(roomID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

// NextOrder returns the next order index the live document would assign for
// the collection, when a room is live for the document.
func (g *Registry) NextOrder(documentID, collection string) (int, bool) {
	g.mu.Lock()
	r, ok := g.rooms[Name(documentID)]
	g.mu.Unlock()
	if !ok {
		return 0, false
	}
	next, err := r.NextOrder(collection)
	if err != nil {
		return 0, false
	}
	return next, true
}

// PushRecord inserts an already-persisted record into the live document for
// a document, if a room is live. Connected viewers see it via broadcast
// without reloading. Returns false when no room is live or the insert was
// rejected.
func (g *Registry) PushRecord(ctx context.Context, documentID, collection string, rec document.Record) bool {
	g.mu.Lock()
	r, ok := g.rooms[Name(documentID)]
	g.mu.Unlock()
	if !ok {
		return false
	}

	if _, err := r.Apply(ctx, Mutation{
		Op:          OpInsert,
		Collection:  collection,
		Record:      rec,
		durableDone: true,
	}); err != nil {
		g.logger.Warn("live push rejected", "document_id", documentID, "collection", collection, "error", err)
		return false
	}
	return true
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Close disposes every live room and the broadcaster.
func (g *Registry) Close() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for id, r := range g.rooms {
		rooms = append(rooms, r)
		delete(g.rooms, id)
	}
	g.mu.Unlock()

	for _, r := range rooms {
		r.close()
	}
	g.broadcaster.Close()
}
