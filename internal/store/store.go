// ABOUTME: Store interface and data types for huddle-sync persistence
// ABOUTME: Defines DocumentInfo and the durable operations behind the rooms and carry-forward

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/huddle-sync/internal/document"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateRecord is returned when inserting a record id that already
// exists in its document/collection.
var ErrDuplicateRecord = errors.New("record already exists")

// DocumentInfo is the durable metadata row for one meeting document.
// Folder membership and meeting date drive carry-forward's previous-document
// resolution.
type DocumentInfo struct {
	ID          string
	FolderID    string
	Title       string
	MeetingDate time.Time
	WeekNumber  int
	CreatedAt   time.Time
}

// Store defines durable persistence for documents and their records.
//
// Record mutations mirror the live mutation kinds and share their
// idempotence rules: UpdateRecordFields and DeleteRecord succeed as no-ops
// when the id is absent. A failed durable write never rolls back the
// already-broadcast in-memory state; the next LoadSnapshot for a fresh room
// reflects whatever persisted.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, info *DocumentInfo) error
	GetDocument(ctx context.Context, id string) (*DocumentInfo, error)
	// ListFolderDocuments returns a folder's documents in chronological
	// order: meeting date ascending, creation time as the stable tie-break.
	ListFolderDocuments(ctx context.Context, folderID string) ([]*DocumentInfo, error)

	// LoadSnapshot builds the full live Storage Document for a room: all
	// nine live collections present (possibly empty, never absent). The
	// backlog collection is excluded.
	LoadSnapshot(ctx context.Context, documentID string) (*document.Document, error)

	// Record mutations (the durable side of the Mutation Router)
	SaveRecord(ctx context.Context, documentID, collection string, rec document.Record) error
	UpdateRecordFields(ctx context.Context, documentID, collection, id string, fields []byte) error
	DeleteRecord(ctx context.Context, documentID, collection, id string) error
	UpdateOrder(ctx context.Context, documentID, collection string, order map[string]int) error

	// ListRecords reads one collection straight from the store, ordered.
	// This is the only read path for the backlog collection, and feeds
	// carry-forward candidate listing.
	ListRecords(ctx context.Context, documentID, collection string) ([]document.Record, error)

	// Close releases any resources held by the store.
	Close() error
}
