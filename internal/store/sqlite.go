// ABOUTME: SQLite implementation of the Store interface (modernc.org/sqlite or mattn/go-sqlite3)
// ABOUTME: Provides owner-scoped conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names registered by the two SQLite packages
const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

// timeLayout is fixed-width so that lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure-Go driver.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return OpenSQLiteStore(DriverModernc, path)
}

// OpenSQLiteStore creates a SQLite store with an explicit driver name ("sqlite" or "sqlite3").
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func OpenSQLiteStore(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCGO {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

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

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id               TEXT PRIMARY KEY,
			owner_id         TEXT NOT NULL,
			title            TEXT NOT NULL,
			created_at       TEXT NOT NULL,
			last_activity_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner_activity
			ON conversations(owner_id, last_activity_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			agent_type      TEXT,
			created_at      TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at, seq);

		CREATE TABLE IF NOT EXISTS assessments (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			domain     TEXT NOT NULL,
			summary    TEXT NOT NULL,
			score      REAL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_assessments_owner_domain
			ON assessments(owner_id, domain, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "messages",
			column: "agent_type",
			apply:  `ALTER TABLE messages ADD COLUMN agent_type TEXT`,
		},
		{
			table:  "assessments",
			column: "score",
			apply:  `ALTER TABLE assessments ADD COLUMN score REAL`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}
	return nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateConversation inserts a new conversation.
// Returns ErrDuplicateConversation if the ID is already taken.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, owner_id, title, created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.OwnerID,
		conv.Title,
		formatTime(conv.CreatedAt),
		formatTime(conv.LastActivityAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "owner", conv.OwnerID)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var createdAtStr, activityStr string

	if err := row.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &createdAtStr, &activityStr); err != nil {
		return nil, err
	}

	var err error
	conv.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.LastActivityAt, err = parseTime(activityStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_activity_at: %w", err)
	}
	return &conv, nil
}

// GetConversation retrieves a conversation owned by ownerID.
// Returns ErrNotFound if it doesn't exist or belongs to someone else.
func (s *SQLiteStore) GetConversation(ctx context.Context, ownerID, id string) (*Conversation, error) {
	query := `
		SELECT id, owner_id, title, created_at, last_activity_at
		FROM conversations
		WHERE id = ? AND owner_id = ?
	`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns the owner's conversations, most recently active first.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT id, owner_id, title, created_at, last_activity_at
		FROM conversations
		WHERE owner_id = ?
		ORDER BY last_activity_at DESC, id
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// UpdateConversationTitle renames a conversation and returns the updated row.
func (s *SQLiteStore) UpdateConversationTitle(ctx context.Context, ownerID, id, title string) (*Conversation, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ? AND owner_id = ?`,
		title, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("updating conversation title: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	s.logger.Debug("renamed conversation", "id", id)
	return s.GetConversation(ctx, ownerID, id)
}

// TouchConversation bumps the last-activity timestamp. It never moves backwards.
func (s *SQLiteStore) TouchConversation(ctx context.Context, ownerID, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_activity_at = MAX(last_activity_at, ?)
		WHERE id = ? AND owner_id = ?
	`, formatTime(at), id, ownerID)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes a conversation and its messages.
// Returns the number of deleted messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, ownerID, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	deleted, err := deleteConversationTx(ctx, tx, ownerID, id)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("deleted conversation", "id", id, "messages", deleted)
	return deleted, nil
}

func deleteConversationTx(ctx context.Context, tx *sql.Tx, ownerID, id string) (int, error) {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ? AND owner_id = ?`, id, ownerID).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("checking conversation: %w", err)
	}

	// Messages are deleted explicitly so the count is exact regardless of the
	// foreign_keys pragma state.
	result, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("deleting messages: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("deleting conversation: %w", err)
	}
	return int(deleted), nil
}

// BulkDeleteConversations deletes all listed conversations or none of them.
// If any ID is missing or foreign, a *NotOwnedError listing those IDs is returned
// and nothing is deleted. Returns the total number of deleted messages.
func (s *SQLiteStore) BulkDeleteConversations(ctx context.Context, ownerID string, ids []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var missing []string
	for _, id := range ids {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM conversations WHERE id = ? AND owner_id = ?`, id, ownerID).Scan(&exists)
		if err == sql.ErrNoRows {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("checking conversation: %w", err)
		}
	}
	if len(missing) > 0 {
		return 0, &NotOwnedError{IDs: missing}
	}

	total := 0
	for _, id := range ids {
		n, err := deleteConversationTx(ctx, tx, ownerID, id)
		if err != nil {
			return 0, err
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing bulk delete: %w", err)
	}

	s.logger.Debug("bulk deleted conversations", "count", len(ids), "messages", total)
	return total, nil
}

// AppendMessage inserts a message into a conversation owned by ownerID.
// CreatedAt is clamped so it never precedes the conversation's latest message,
// and Seq is filled from the insertion sequence.
func (s *SQLiteStore) AppendMessage(ctx context.Context, ownerID string, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ? AND owner_id = ?`, msg.ConversationID, ownerID).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking conversation: %w", err)
	}

	var latest sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`, msg.ConversationID).Scan(&latest); err != nil {
		return fmt.Errorf("querying latest message: %w", err)
	}
	if latest.Valid {
		if latestAt, err := parseTime(latest.String); err == nil && msg.CreatedAt.Before(latestAt) {
			msg.CreatedAt = latestAt
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, agent_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, string(msg.Role), msg.Content, nullString(msg.AgentType), formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading message sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}
	msg.Seq = seq

	s.logger.Debug("saved message", "id", msg.ID, "conversation_id", msg.ConversationID, "role", msg.Role)
	return nil
}

// ListMessages returns a page of messages ordered by creation time, ties broken
// by insertion sequence, together with the conversation's total message count.
func (s *SQLiteStore) ListMessages(ctx context.Context, ownerID string, q MessageQuery) (*MessagePage, error) {
	if _, err := s.GetConversation(ctx, ownerID, q.ConversationID); err != nil {
		return nil, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, q.ConversationID).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	direction := "ASC"
	if q.Order == OrderDesc {
		direction = "DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT seq, id, conversation_id, role, content, agent_type, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ` + direction + `, seq ` + direction + `
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, q.ConversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	page := &MessagePage{Total: total, Messages: []*Message{}}
	for rows.Next() {
		var msg Message
		var role, createdAtStr string
		var agentType sql.NullString

		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &role, &msg.Content, &agentType, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.Role = Role(role)
		if agentType.Valid {
			msg.AgentType = agentType.String
		}
		msg.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		page.Messages = append(page.Messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return page, nil
}

// GetConversationStats computes aggregate statistics over a conversation's messages.
func (s *SQLiteStore) GetConversationStats(ctx context.Context, ownerID, id string) (*ConversationStats, error) {
	if _, err := s.GetConversation(ctx, ownerID, id); err != nil {
		return nil, err
	}

	var stats ConversationStats
	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(LENGTH(content)), 0),
		       COALESCE(SUM(CASE WHEN role = 'user' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN role = 'assistant' THEN 1 ELSE 0 END), 0),
		       MIN(created_at),
		       MAX(created_at)
		FROM messages
		WHERE conversation_id = ?
	`, id).Scan(&stats.MessageCount, &stats.TotalChars, &stats.UserMessages, &stats.AgentMessages, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("querying conversation stats: %w", err)
	}

	if stats.MessageCount > 0 {
		stats.AverageLength = float64(stats.TotalChars) / float64(stats.MessageCount)
	}
	if first.Valid {
		if t, err := parseTime(first.String); err == nil {
			stats.FirstMessageAt = &t
		}
	}
	if last.Valid {
		if t, err := parseTime(last.String); err == nil {
			stats.LastMessageAt = &t
		}
	}
	return &stats, nil
}

// SaveAssessment stores a new assessment row. Older rows are kept; reads return the newest.
func (s *SQLiteStore) SaveAssessment(ctx context.Context, a *Assessment) error {
	var score any
	if a.Score != nil {
		score = *a.Score
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assessments (id, owner_id, domain, summary, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.OwnerID, a.Domain, a.Summary, score, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting assessment: %w", err)
	}

	s.logger.Debug("saved assessment", "id", a.ID, "owner", a.OwnerID, "domain", a.Domain)
	return nil
}

// GetLatestAssessment returns the newest assessment for (owner, domain).
// Returns ErrNotFound if none exists.
func (s *SQLiteStore) GetLatestAssessment(ctx context.Context, ownerID, domain string) (*Assessment, error) {
	var a Assessment
	var score sql.NullFloat64
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, domain, summary, score, created_at
		FROM assessments
		WHERE owner_id = ? AND domain = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, ownerID, domain).Scan(&a.ID, &a.OwnerID, &a.Domain, &a.Summary, &score, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying assessment: %w", err)
	}

	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	a.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing assessment created_at: %w", err)
	}
	return &a, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
