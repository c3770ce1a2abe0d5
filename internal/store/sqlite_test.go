// ABOUTME: Tests for the SQLite store - snapshot assembly, mutation persistence, folder ordering
// ABOUTME: Uses in-memory databases; every test gets a fresh store

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/huddle-sync/internal/document"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedDocument(t *testing.T, s *SQLiteStore, id, folderID string, date time.Time) *DocumentInfo {
	t.Helper()
	info := &DocumentInfo{
		ID:          id,
		FolderID:    folderID,
		Title:       "Weekly Huddle",
		MeetingDate: date,
		WeekNumber:  1,
	}
	require.NoError(t, s.CreateDocument(context.Background(), info))
	return info
}

func TestCreateDocument_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	seedDocument(t, s, "doc-1", "folder-1", date)

	err := s.CreateDocument(context.Background(), &DocumentInfo{
		ID: "doc-1", FolderID: "folder-1", Title: "again", MeetingDate: date,
	})
	assert.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestGetDocument_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDocument(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadSnapshot_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "doc-1", "folder-1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	todo := &document.Todo{RecordMeta: document.RecordMeta{ID: "r1", OrderIndex: 0}, Text: "check budget", Owner: "Dana"}
	rock := &document.Rock{RecordMeta: document.RecordMeta{ID: "g1", OrderIndex: 0}, Title: "Ship v2", Owner: "Priya", Status: "on-track"}
	require.NoError(t, s.SaveRecord(ctx, "doc-1", document.CollectionNewTodos, todo))
	require.NoError(t, s.SaveRecord(ctx, "doc-1", document.CollectionRocks, rock))

	doc, err := s.LoadSnapshot(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "folder-1", doc.FolderID)

	todos, _ := doc.Collection(document.CollectionNewTodos)
	require.Equal(t, 1, todos.Len())
	got, _ := todos.Get("r1")
	assert.Equal(t, "check budget", got.(*document.Todo).Text)

	// Every live collection present even when empty.
	for _, name := range document.LiveCollections {
		_, ok := doc.Collection(name)
		assert.True(t, ok, "collection %s missing from snapshot", name)
	}
}

func TestLoadSnapshot_ExcludesBacklog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "doc-1", "folder-1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	note := &document.BacklogNote{RecordMeta: document.RecordMeta{ID: "b1"}, Text: "someday"}
	require.NoError(t, s.SaveRecord(ctx, "doc-1", document.CollectionBacklog, note))

	doc, err := s.LoadSnapshot(ctx, "doc-1")
	require.NoError(t, err)
	_, ok := doc.Collection(document.CollectionBacklog)
	assert.False(t, ok)

	// Still reachable through the direct store read path.
	recs, err := s.ListRecords(ctx, "doc-1", document.CollectionBacklog)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "someday", recs[0].(*document.BacklogNote).Text)
}

func TestSaveRecord_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "doc-1", "folder-1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	todo := &document.Todo{RecordMeta: document.RecordMeta{ID: "r1"}, Text: "once"}
	require.NoError(t, s.SaveRecord(ctx, "doc-1", document.CollectionNewTodos, todo))

	err := s.SaveRecord(ctx, "doc-1", document.CollectionNewTodos, todo)
	assert.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestUpdateRecordFields_MergesAndNoOpsWhenMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "doc-1", "folder-1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	todo := &document.Todo{RecordMeta: document.RecordMeta{ID: "r1", OrderIndex: 2}, Text: "check budget", Owner: "Dana"}
	require.NoError(t, s.SaveRecord(ctx, "doc-1", document.CollectionNewTodos, todo))

	require.NoError(t, s.UpdateRecordFields(ctx, "doc-1", document.CollectionNewTodos, "r1", []byte(`{"done":true}`)))

	recs, err := s.ListRecords(ctx, "doc-1", document.CollectionNewTodos)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	merged := recs[0].(*document.Todo)
	assert.True(t, merged.Done)
	assert.Equal(t, "check budget", merged.Text)
	assert.Equal(t, 2, merged.Order())

	// Missing id: no-op success, never an error.
	require.NoError(t, s.UpdateRecordFields(ctx, "doc-1", document.CollectionNewTodos, "ghost", []byte(`{"done":true}`)))

	// Undecodable payload: rejected, and the stored row is untouched.
	err = s.UpdateRecordFields(ctx, "doc-1", document.CollectionNewTodos, "r1", []byte(`{"text":"sneaky","done":"oops"}`))
	assert.ErrorIs(t, err, document.ErrInvalidFields)
	recs, err = s.ListRecords(ctx, "doc-1", document.CollectionNewTodos)
	require.NoError(t, err)
	assert.Equal(t, "check budget", recs[0].(*document.Todo).Text)
}

func TestDeleteRecord_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "doc-1", "folder-1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	todo := &document.Todo{RecordMeta: document.RecordMeta{ID: "r1"}}
	require.NoError(t, s.SaveRecord(ctx, "doc-1", document.CollectionNewTodos, todo))

	require.NoError(t, s.DeleteRecord(ctx, "doc-1", document.CollectionNewTodos, "r1"))
	require.NoError(t, s.DeleteRecord(ctx, "doc-1", document.CollectionNewTodos, "r1"))

	recs, err := s.ListRecords(ctx, "doc-1", document.CollectionNewTodos)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUpdateOrder_SkipsMissingIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "doc-1", "folder-1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	for i, id := range []string{"a", "b"} {
		issue := &document.Issue{RecordMeta: document.RecordMeta{ID: id, OrderIndex: i}}
		require.NoError(t, s.SaveRecord(ctx, "doc-1", document.CollectionIssues, issue))
	}

	require.NoError(t, s.UpdateOrder(ctx, "doc-1", document.CollectionIssues, map[string]int{
		"b": 0, "a": 1, "ghost": 2,
	}))

	recs, err := s.ListRecords(ctx, "doc-1", document.CollectionIssues)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].RecordID())
	assert.Equal(t, "a", recs[1].RecordID())
}

func TestListFolderDocuments_ChronologicalWithTieBreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateDocument(ctx, &DocumentInfo{
		ID: "doc-2", FolderID: "folder-1", Title: "w2", MeetingDate: base.AddDate(0, 0, 7),
		CreatedAt: base.AddDate(0, 0, 7),
	}))
	require.NoError(t, s.CreateDocument(ctx, &DocumentInfo{
		ID: "doc-1", FolderID: "folder-1", Title: "w1", MeetingDate: base,
		CreatedAt: base,
	}))
	// Same meeting date as doc-2, created later: creation order breaks the tie.
	require.NoError(t, s.CreateDocument(ctx, &DocumentInfo{
		ID: "doc-3", FolderID: "folder-1", Title: "w2 redo", MeetingDate: base.AddDate(0, 0, 7),
		CreatedAt: base.AddDate(0, 0, 8),
	}))
	require.NoError(t, s.CreateDocument(ctx, &DocumentInfo{
		ID: "other", FolderID: "folder-2", Title: "elsewhere", MeetingDate: base,
	}))

	docs, err := s.ListFolderDocuments(ctx, "folder-1")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, "doc-2", docs[1].ID)
	assert.Equal(t, "doc-3", docs[2].ID)
}

func TestUpdateRecordFields_TracksOwnerColumn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedDocument(t, s, "doc-1", "folder-1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	todo := &document.Todo{RecordMeta: document.RecordMeta{ID: "r1"}, Text: "reassign me", Owner: "Dana"}
	require.NoError(t, s.SaveRecord(ctx, "doc-1", document.CollectionNewTodos, todo))
	require.NoError(t, s.UpdateRecordFields(ctx, "doc-1", document.CollectionNewTodos, "r1", []byte(`{"owner":"Sam"}`)))

	var owner string
	row := s.db.QueryRow(`SELECT owner FROM records WHERE id = 'r1'`)
	require.NoError(t, row.Scan(&owner))
	assert.Equal(t, "Sam", owner)
}
