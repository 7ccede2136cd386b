// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - Conversation: a chat transcript owned by one caller
//   - Message: an immutable user or assistant message within a conversation
//   - Assessment: a per-domain self-assessment summary, newest wins
//
// Every method that touches a conversation takes the owner ID and treats a
// conversation owned by someone else exactly like a missing one (ErrNotFound).
//
// # SQLite Configuration
//
// Two drivers are supported, selected by name:
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, cgo
//
// Both are opened with:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Messages are ordered by (created_at, seq) where seq is an AUTOINCREMENT
// column, so messages written within the same instant keep insertion order.
//
// # Testing
//
// Use NewMockStore() for unit tests. It mirrors SQLiteStore semantics and
// supports write failure injection through AppendErr.
package store
