// Package store provides durable persistence for documents and records
// using SQLite.
//
// # Schema
//
// Two tables: documents (metadata: folder, title, meeting date, week
// number) and records (one row per record, keyed by document, collection,
// and id, with the order index and owner extracted into columns and the
// full record as a JSON payload).
//
// # SQLite Configuration
//
// The store uses SQLite via modernc.org/sqlite with WAL mode for
// concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") for tests.
//
// # Semantics
//
// LoadSnapshot builds the full live document for a room, all nine live
// collections present and the backlog excluded. Record mutations mirror the
// live mutation kinds: UpdateRecordFields and DeleteRecord succeed as
// no-ops when the id is absent. ListFolderDocuments returns a folder in
// chronological order (meeting date, then creation time), which is what
// carry-forward's previous-document resolution leans on.
package store
