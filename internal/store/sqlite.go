// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Documents and records persistence with automatic schema creation and WAL mode

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/huddle-sync/internal/document"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id           TEXT PRIMARY KEY,
			folder_id    TEXT NOT NULL,
			title        TEXT NOT NULL,
			meeting_date DATETIME NOT NULL,
			week_number  INTEGER NOT NULL DEFAULT 0,
			created_at   DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_folder
			ON documents(folder_id, meeting_date, created_at);

		CREATE TABLE IF NOT EXISTS records (
			id          TEXT NOT NULL,
			document_id TEXT NOT NULL,
			collection  TEXT NOT NULL,
			order_index INTEGER NOT NULL DEFAULT 0,
			owner       TEXT NOT NULL DEFAULT '',
			payload     TEXT NOT NULL,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL,

			PRIMARY KEY (document_id, collection, id),
			FOREIGN KEY (document_id) REFERENCES documents(id)
		);

		CREATE INDEX IF NOT EXISTS idx_records_doc_collection
			ON records(document_id, collection, order_index);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// CreateDocument inserts a document metadata row.
func (s *SQLiteStore) CreateDocument(ctx context.Context, info *DocumentInfo) error {
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, folder_id, title, meeting_date, week_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, info.FolderID, info.Title, info.MeetingDate.UTC(), info.WeekNumber, info.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", info.ID, ErrDuplicateRecord)
		}
		return fmt.Errorf("creating document: %w", err)
	}
	return nil
}

// GetDocument returns a document metadata row.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*DocumentInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, folder_id, title, meeting_date, week_number, created_at
		FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListFolderDocuments returns a folder's documents in chronological order:
// meeting date ascending, created_at as the stable tie-break.
func (s *SQLiteStore) ListFolderDocuments(ctx context.Context, folderID string) ([]*DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, folder_id, title, meeting_date, week_number, created_at
		FROM documents WHERE folder_id = ?
		ORDER BY meeting_date ASC, created_at ASC, id ASC`, folderID)
	if err != nil {
		return nil, fmt.Errorf("listing folder documents: %w", err)
	}
	defer rows.Close()

	var docs []*DocumentInfo
	for rows.Next() {
		info, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, info)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentInfo, error) {
	var info DocumentInfo
	err := row.Scan(&info.ID, &info.FolderID, &info.Title, &info.MeetingDate, &info.WeekNumber, &info.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &info, nil
}

// LoadSnapshot builds the live Storage Document for a room. All nine live
// collections are present even when empty; the backlog is excluded.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, documentID string) (*document.Document, error) {
	info, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	doc := document.New(info.ID, info.FolderID, info.Title, info.MeetingDate, info.WeekNumber)

	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, order_index, payload
		FROM records
		WHERE document_id = ? AND collection != ?
		ORDER BY collection, order_index, id`, documentID, document.CollectionBacklog)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var collection, payload string
		var orderIndex int
		if err := rows.Scan(&collection, &orderIndex, &payload); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec, err := document.DecodeRecord(collection, []byte(payload))
		if err != nil {
			// A row from a collection the model no longer knows is skipped,
			// not fatal: the live document stays loadable across versions.
			s.logger.Warn("skipping undecodable record", "document_id", documentID, "collection", collection, "error", err)
			continue
		}
		rec.SetOrder(orderIndex)
		if err := doc.Insert(collection, rec); err != nil {
			return nil, fmt.Errorf("assembling snapshot: %w", err)
		}
	}
	return doc, rows.Err()
}

// SaveRecord inserts one record durably.
func (s *SQLiteStore) SaveRecord(ctx context.Context, documentID, collection string, rec document.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, document_id, collection, order_index, owner, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RecordID(), documentID, collection, rec.Order(), ownerOf(rec), string(payload), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record %s: %w", rec.RecordID(), ErrDuplicateRecord)
		}
		return fmt.Errorf("saving record: %w", err)
	}
	return nil
}

// UpdateRecordFields merges a partial JSON payload into the stored record,
// mirroring the live merge. A missing row is a no-op success.
func (s *SQLiteStore) UpdateRecordFields(ctx context.Context, documentID, collection, id string, fields []byte) error {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_index, payload FROM records
		WHERE document_id = ? AND collection = ? AND id = ?`, documentID, collection, id)

	var orderIndex int
	var payload string
	if err := row.Scan(&orderIndex, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("reading record for update: %w", err)
	}

	rec, err := document.DecodeRecord(collection, []byte(payload))
	if err != nil {
		return fmt.Errorf("decoding stored record: %w", err)
	}
	if err := json.Unmarshal(fields, rec); err != nil {
		return fmt.Errorf("%w: %v", document.ErrInvalidFields, err)
	}
	rec.SetOrder(orderIndex)

	merged, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding merged record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE records SET payload = ?, owner = ?, updated_at = ?
		WHERE document_id = ? AND collection = ? AND id = ?`,
		string(merged), ownerOf(rec), time.Now().UTC(), documentID, collection, id)
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	return nil
}

// DeleteRecord removes one record. A missing row is a no-op success.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, documentID, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE document_id = ? AND collection = ? AND id = ?`,
		documentID, collection, id)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// UpdateOrder writes new order indexes for the given ids. Ids with no row
// are skipped silently, matching the live reorder semantics.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, documentID, collection string, order map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting reorder transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for id, idx := range order {
		if _, err := tx.ExecContext(ctx, `
			UPDATE records SET order_index = ?, updated_at = ?
			WHERE document_id = ? AND collection = ? AND id = ?`,
			idx, now, documentID, collection, id); err != nil {
			return fmt.Errorf("updating order for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ListRecords reads one collection directly from the store, in order.
func (s *SQLiteStore) ListRecords(ctx context.Context, documentID, collection string) ([]document.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_index, payload FROM records
		WHERE document_id = ? AND collection = ?
		ORDER BY order_index, id`, documentID, collection)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	recs := make([]document.Record, 0)
	for rows.Next() {
		var orderIndex int
		var payload string
		if err := rows.Scan(&orderIndex, &payload); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec, err := document.DecodeRecord(collection, []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		rec.SetOrder(orderIndex)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func ownerOf(rec document.Record) string {
	if o, ok := rec.(document.Owned); ok {
		return o.OwnerName()
	}
	return ""
}

// isUniqueViolation reports whether err is a SQLite unique/primary key
// constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
