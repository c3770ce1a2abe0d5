// ABOUTME: Tests for Room mutation serialization, broadcast ordering, and presence
// ABOUTME: fakeStore records durable writes and can fail selected saves

package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/huddle-sync/internal/document"
)

type storedRec struct {
	order   int
	payload []byte
}

type docMeta struct {
	folderID    string
	title       string
	meetingDate time.Time
	weekNumber  int
}

// fakeStore is an in-memory Store. Records are cloned through JSON so the
// fake holds real durable copies, not pointers into the live document.
type fakeStore struct {
	mu      sync.Mutex
	loads   int
	docs    map[string]docMeta
	records map[string]map[string]map[string]*storedRec // doc -> collection -> id

	failSaveIDs map[string]bool
	opLog       []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:        make(map[string]docMeta),
		records:     make(map[string]map[string]map[string]*storedRec),
		failSaveIDs: make(map[string]bool),
	}
}

func (f *fakeStore) addDocument(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id] = docMeta{
		folderID:    "folder-1",
		title:       "Weekly Huddle",
		meetingDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		weekNumber:  1,
	}
}

func (f *fakeStore) collection(docID, collection string) map[string]*storedRec {
	byDoc, ok := f.records[docID]
	if !ok {
		byDoc = make(map[string]map[string]*storedRec)
		f.records[docID] = byDoc
	}
	byColl, ok := byDoc[collection]
	if !ok {
		byColl = make(map[string]*storedRec)
		byDoc[collection] = byColl
	}
	return byColl
}

func (f *fakeStore) LoadSnapshot(_ context.Context, documentID string) (*document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	meta, ok := f.docs[documentID]
	if !ok {
		return nil, errors.New("document not found")
	}
	f.loads++

	doc := document.New(documentID, meta.folderID, meta.title, meta.meetingDate, meta.weekNumber)
	for collection, byID := range f.records[documentID] {
		for _, sr := range byID {
			rec, err := document.DecodeRecord(collection, sr.payload)
			if err != nil {
				return nil, err
			}
			rec.SetOrder(sr.order)
			if err := doc.Insert(collection, rec); err != nil {
				return nil, err
			}
		}
	}
	return doc, nil
}

func (f *fakeStore) SaveRecord(_ context.Context, documentID, collection string, rec document.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opLog = append(f.opLog, fmt.Sprintf("save:%s:%s", collection, rec.RecordID()))
	if f.failSaveIDs[rec.RecordID()] {
		return errors.New("durable save failed")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f.collection(documentID, collection)[rec.RecordID()] = &storedRec{order: rec.Order(), payload: payload}
	return nil
}

func (f *fakeStore) UpdateRecordFields(_ context.Context, documentID, collection, id string, fields []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opLog = append(f.opLog, fmt.Sprintf("update:%s:%s", collection, id))
	sr, ok := f.collection(documentID, collection)[id]
	if !ok {
		return nil
	}
	rec, err := document.DecodeRecord(collection, sr.payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(fields, rec); err != nil {
		return err
	}
	merged, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	sr.payload = merged
	return nil
}

func (f *fakeStore) DeleteRecord(_ context.Context, documentID, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opLog = append(f.opLog, fmt.Sprintf("delete:%s:%s", collection, id))
	delete(f.collection(documentID, collection), id)
	return nil
}

func (f *fakeStore) UpdateOrder(_ context.Context, documentID, collection string, order map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opLog = append(f.opLog, fmt.Sprintf("reorder:%s", collection))
	byID := f.collection(documentID, collection)
	for id, idx := range order {
		if sr, ok := byID[id]; ok {
			sr.order = idx
		}
	}
	return nil
}

func (f *fakeStore) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *fakeStore) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.opLog))
	copy(out, f.opLog)
	return out
}

func newTodo(id, text string) *document.Todo {
	return &document.Todo{RecordMeta: document.RecordMeta{ID: id}, Text: text}
}

func waitMutation(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev, open := <-ch:
			require.True(t, open, "event channel closed while waiting for mutation")
			if ev.Type == EventMutation {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for mutation event")
		}
	}
}

func waitEventType(t *testing.T, ch <-chan *Event, eventType string) *Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev, open := <-ch:
			require.True(t, open, "event channel closed while waiting for %s", eventType)
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func TestRoom_InsertObservedByOtherConnectionViaBroadcast(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	roomID := Name("D1")

	// Connection Y subscribes and joins first.
	chY, subY := reg.Subscribe(ctx, roomID)
	_, err := reg.Join(ctx, "D1", "conn-y", Identity{DisplayName: "Yuki"}, subY)
	require.NoError(t, err)

	// Connection X joins and inserts.
	chX, subX := reg.Subscribe(ctx, roomID)
	r, err := reg.Join(ctx, "D1", "conn-x", Identity{DisplayName: "Xena"}, subX)
	require.NoError(t, err)

	_, err = r.Apply(ctx, Mutation{
		Op:         OpInsert,
		Collection: document.CollectionNewTodos,
		Record:     newTodo("r1", "check budget"),
		Origin:     subX,
	})
	require.NoError(t, err)

	ev := waitMutation(t, chY)
	assert.Equal(t, OpInsert, ev.Op)
	assert.Equal(t, document.CollectionNewTodos, ev.Collection)
	todo := ev.Record.(*document.Todo)
	assert.Equal(t, "r1", todo.RecordID())
	assert.Equal(t, "check budget", todo.Text)
	assert.Equal(t, 0, todo.Order())

	// The originating connection does not get its own mutation back.
	select {
	case got := <-chX:
		if got.Type == EventMutation {
			t.Fatalf("originating connection received its own mutation: %+v", got)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoom_BroadcastsInAppliedOrder(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	ch, _ := reg.Subscribe(ctx, Name("D1"))
	r, err := reg.Join(ctx, "D1", "conn-x", Identity{DisplayName: "Xena"}, "")
	require.NoError(t, err)

	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: document.CollectionNewTodos, Record: newTodo("r1", "one")})
	require.NoError(t, err)
	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: document.CollectionIssues, Record: &document.Issue{RecordMeta: document.RecordMeta{ID: "i1"}, Text: "slow builds"}})
	require.NoError(t, err)
	_, err = r.Apply(ctx, Mutation{Op: OpUpdate, Collection: document.CollectionNewTodos, RecordID: "r1", Fields: json.RawMessage(`{"done":true}`)})
	require.NoError(t, err)
	_, err = r.Apply(ctx, Mutation{Op: OpDelete, Collection: document.CollectionIssues, RecordID: "i1"})
	require.NoError(t, err)

	var seqs []int64
	var ops []Op
	for i := 0; i < 4; i++ {
		ev := waitMutation(t, ch)
		seqs = append(seqs, ev.Seq)
		ops = append(ops, ev.Op)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, seqs)
	assert.Equal(t, []Op{OpInsert, OpInsert, OpUpdate, OpDelete}, ops)
}

func TestRoom_StaleTargetsAreAbsorbed(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	ch, _ := reg.Subscribe(ctx, Name("D1"))
	r, err := reg.Join(ctx, "D1", "conn-x", Identity{}, "")
	require.NoError(t, err)

	ev, err := r.Apply(ctx, Mutation{Op: OpUpdate, Collection: document.CollectionNewTodos, RecordID: "ghost", Fields: json.RawMessage(`{"done":true}`)})
	require.NoError(t, err, "stale update must not be an error")
	assert.Nil(t, ev)

	ev, err = r.Apply(ctx, Mutation{Op: OpDelete, Collection: document.CollectionNewTodos, RecordID: "ghost"})
	require.NoError(t, err)
	assert.Nil(t, ev)

	// Nothing was broadcast for the absorbed mutations.
	select {
	case got := <-ch:
		if got.Type == EventMutation {
			t.Fatalf("absorbed mutation was broadcast: %+v", got)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoom_RejectsBoundaryErrors(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	r, err := reg.Join(ctx, "D1", "conn-x", Identity{}, "")
	require.NoError(t, err)

	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: "nonsense", Record: newTodo("r1", "x")})
	assert.ErrorIs(t, err, document.ErrUnknownCollection)

	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: document.CollectionNewTodos, Record: newTodo("r1", "x")})
	require.NoError(t, err)
	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: document.CollectionNewTodos, Record: newTodo("r1", "again")})
	assert.ErrorIs(t, err, document.ErrDuplicateRecord)

	// A payload that cannot decode is rejected, not absorbed: the live
	// record must not half-apply.
	_, err = r.Apply(ctx, Mutation{Op: OpUpdate, Collection: document.CollectionNewTodos, RecordID: "r1", Fields: json.RawMessage(`{"text":"sneaky","done":"oops"}`)})
	assert.ErrorIs(t, err, document.ErrInvalidFields)

	snap, _, _ := r.Snapshot()
	todo := snap.Collections[document.CollectionNewTodos][0].(*document.Todo)
	assert.Equal(t, "x", todo.Text)
}

func TestRoom_BroadcastRecordsAreDetachedCopies(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	ch, _ := reg.Subscribe(ctx, Name("D1"))
	r, err := reg.Join(ctx, "D1", "conn-x", Identity{}, "")
	require.NoError(t, err)

	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: document.CollectionNewTodos, Record: newTodo("r1", "before")})
	require.NoError(t, err)
	ev := waitMutation(t, ch)

	_, err = r.Apply(ctx, Mutation{Op: OpUpdate, Collection: document.CollectionNewTodos, RecordID: "r1", Fields: json.RawMessage(`{"text":"after"}`)})
	require.NoError(t, err)

	assert.Equal(t, "before", ev.Record.(*document.Todo).Text,
		"a delivered event must not change under later mutations")
}

func TestRoom_ConcurrentSnapshotsDuringMutations(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	r, err := reg.Join(ctx, "D1", "conn-x", Identity{}, "")
	require.NoError(t, err)
	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: document.CollectionNewTodos, Record: newTodo("r1", "v0")})
	require.NoError(t, err)

	// Readers marshal snapshots while a writer keeps mutating the same
	// record. Run with -race; live pointers leaking out of the room mutex
	// fail here.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			fields := fmt.Sprintf(`{"text":"v%d","done":%t}`, i, i%2 == 0)
			_, err := r.Apply(ctx, Mutation{Op: OpUpdate, Collection: document.CollectionNewTodos, RecordID: "r1", Fields: json.RawMessage(fields)})
			assert.NoError(t, err)
		}
	}()

	for i := 0; i < 200; i++ {
		snap, _, _ := r.Snapshot()
		_, err := json.Marshal(snap)
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestRoom_ReorderDropsDeletedIDs(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	ch, _ := reg.Subscribe(ctx, Name("D1"))
	r, err := reg.Join(ctx, "D1", "conn-x", Identity{}, "")
	require.NoError(t, err)

	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: document.CollectionNewTodos, Record: newTodo("r1", "one")})
	require.NoError(t, err)
	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: document.CollectionNewTodos, Record: newTodo("r3", "three")})
	require.NoError(t, err)

	// r2 was deleted by another editor mid-drag.
	ev, err := r.Apply(ctx, Mutation{Op: OpReorder, Collection: document.CollectionNewTodos, Order: []string{"r2", "r1"}})
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, []string{"r1"}, ev.Order)

	// Drain the two insert events, then check the reorder broadcast.
	waitMutation(t, ch)
	waitMutation(t, ch)
	got := waitMutation(t, ch)
	assert.Equal(t, OpReorder, got.Op)
	assert.Equal(t, []string{"r1"}, got.Order)
}

func TestRoom_PersistsDurableWritesInApplyOrder(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	r, err := reg.Join(ctx, "D1", "conn-x", Identity{}, "")
	require.NoError(t, err)

	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: document.CollectionNewTodos, Record: newTodo("r1", "one")})
	require.NoError(t, err)
	_, err = r.Apply(ctx, Mutation{Op: OpUpdate, Collection: document.CollectionNewTodos, RecordID: "r1", Fields: json.RawMessage(`{"done":true}`)})
	require.NoError(t, err)
	_, err = r.Apply(ctx, Mutation{Op: OpDelete, Collection: document.CollectionNewTodos, RecordID: "r1"})
	require.NoError(t, err)

	expected := []string{
		"save:newTodos:r1",
		"update:newTodos:r1",
		"delete:newTodos:r1",
	}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(expected, fs.ops())
	}, time.Second, 10*time.Millisecond)
}

func TestRoom_DurableFailureDoesNotRollBackLiveState(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	fs.failSaveIDs["r1"] = true
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	r, err := reg.Join(ctx, "D1", "conn-x", Identity{}, "")
	require.NoError(t, err)

	_, err = r.Apply(ctx, Mutation{Op: OpInsert, Collection: document.CollectionNewTodos, Record: newTodo("r1", "lost write")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(fs.ops()) == 1
	}, time.Second, 10*time.Millisecond)

	// Live collaborators still see the record: in-memory is source of truth.
	snap, _, _ := r.Snapshot()
	require.Len(t, snap.Collections[document.CollectionNewTodos], 1)
}

func TestRoom_PresenceIsolationAndRemoval(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	roomID := Name("D1")

	chB, subB := reg.Subscribe(ctx, roomID)
	r, err := reg.Join(ctx, "D1", "conn-b", Identity{DisplayName: "Bao", ColorHint: "#00f"}, subB)
	require.NoError(t, err)
	_, err = reg.Join(ctx, "D1", "conn-a", Identity{DisplayName: "Ana", ColorHint: "#f00"}, "")
	require.NoError(t, err)

	// B sees A join.
	joined := waitEventType(t, chB, EventPresence)
	assert.Equal(t, "conn-a", joined.Presence.ConnectionID)

	// A focuses a section; B's own entry is untouched.
	section := "issues"
	r.SetPresence("conn-a", PresenceUpdate{FocusedSection: &section}, "")

	focused := waitEventType(t, chB, EventPresence)
	assert.Equal(t, "conn-a", focused.Presence.ConnectionID)
	assert.Equal(t, "issues", focused.Presence.FocusedSection)

	_, list, _ := r.Snapshot()
	require.Len(t, list, 2)
	for _, p := range list {
		if p.ConnectionID == "conn-b" {
			assert.Empty(t, p.FocusedSection, "another connection's update must not alter B")
			assert.Equal(t, "Bao", p.Identity.DisplayName)
		}
	}

	// Disconnect destroys A's entry immediately and announces it.
	reg.Leave(roomID, "conn-a")
	gone := waitEventType(t, chB, EventPresenceGone)
	assert.Equal(t, "conn-a", gone.ConnectionID)

	_, list, _ = r.Snapshot()
	require.Len(t, list, 1)
	assert.Equal(t, "conn-b", list[0].ConnectionID)
}

func TestRoom_PresenceUpdateForUnknownConnectionIsDropped(t *testing.T) {
	fs := newFakeStore()
	fs.addDocument("D1")
	reg := NewRegistry(fs, nil)
	defer reg.Close()

	ctx := t.Context()
	ch, _ := reg.Subscribe(ctx, Name("D1"))
	r, err := reg.Join(ctx, "D1", "conn-a", Identity{DisplayName: "Ana"}, "")
	require.NoError(t, err)

	section := "rocks"
	r.SetPresence("ghost", PresenceUpdate{FocusedSection: &section}, "")

	select {
	case ev := <-ch:
		if ev.Type == EventPresence && ev.Presence.ConnectionID == "ghost" {
			t.Fatal("presence update for unknown connection was broadcast")
		}
	case <-time.After(50 * time.Millisecond):
	}
}
