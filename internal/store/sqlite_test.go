// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers conversation CRUD, ownership scoping, message ordering and pagination

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestOpenSQLiteStore_UnknownDriver(t *testing.T) {
	_, err := OpenSQLiteStore("postgres", filepath.Join(t.TempDir(), "x.db"))
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpenSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s1, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	conv := newConversation("conv-1", "alice")
	require.NoError(t, s1.CreateConversation(ctx, conv))
	require.NoError(t, s1.Close())

	// Schema creation and migrations are idempotent
	s2, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetConversation(ctx, "alice", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, conv.Title, got.Title)
}

func TestCreateAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := newConversation("conv-123", "alice")

	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "alice", "conv-123")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	if got.ID != conv.ID {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, conv.ID)
	}
	if got.OwnerID != conv.OwnerID {
		t.Errorf("OwnerID mismatch: got %q, want %q", got.OwnerID, conv.OwnerID)
	}
	if got.Title != conv.Title {
		t.Errorf("Title mismatch: got %q, want %q", got.Title, conv.Title)
	}
	if !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, conv.CreatedAt)
	}
}

func TestCreateConversation_Duplicate(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))

	err := store.CreateConversation(ctx, newConversation("conv-1", "bob"))
	assert.ErrorIs(t, err, ErrDuplicateConversation)
}

func TestGetConversation_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetConversation(context.Background(), "alice", "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetConversation_ForeignOwnerIsNotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))

	_, err := store.GetConversation(ctx, "mallory", "conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessage_ForeignOwnerRejected(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))

	err := store.AppendMessage(ctx, "mallory", newMessage("conv-1", RoleUser, "hi", time.Now()))
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := store.ListMessages(ctx, "alice", MessageQuery{ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestListMessages_Ordering(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msg := newMessage("conv-1", role, fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, store.AppendMessage(ctx, "alice", msg))
	}

	asc, err := store.ListMessages(ctx, "alice", MessageQuery{ConversationID: "conv-1", Order: OrderAsc})
	require.NoError(t, err)
	require.Len(t, asc.Messages, 5)
	assert.Equal(t, 5, asc.Total)
	for i := 1; i < len(asc.Messages); i++ {
		assert.False(t, asc.Messages[i].CreatedAt.Before(asc.Messages[i-1].CreatedAt), "asc order violated at %d", i)
	}
	assert.Equal(t, "message 0", asc.Messages[0].Content)

	desc, err := store.ListMessages(ctx, "alice", MessageQuery{ConversationID: "conv-1", Order: OrderDesc})
	require.NoError(t, err)
	require.Len(t, desc.Messages, 5)
	for i := 1; i < len(desc.Messages); i++ {
		assert.False(t, desc.Messages[i].CreatedAt.After(desc.Messages[i-1].CreatedAt), "desc order violated at %d", i)
	}
	assert.Equal(t, "message 4", desc.Messages[0].Content)
}

func TestListMessages_TiesBrokenByInsertion(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))

	same := time.Now().UTC()
	for _, content := range []string{"first", "second", "third"} {
		require.NoError(t, store.AppendMessage(ctx, "alice", newMessage("conv-1", RoleUser, content, same)))
	}

	page, err := store.ListMessages(ctx, "alice", MessageQuery{ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, "first", page.Messages[0].Content)
	assert.Equal(t, "second", page.Messages[1].Content)
	assert.Equal(t, "third", page.Messages[2].Content)
	assert.Less(t, page.Messages[0].Seq, page.Messages[1].Seq)
}

func TestAppendMessage_ClampsBackwardsTimestamp(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))

	now := time.Now().UTC()
	require.NoError(t, store.AppendMessage(ctx, "alice", newMessage("conv-1", RoleUser, "later", now)))

	early := newMessage("conv-1", RoleAssistant, "earlier clock", now.Add(-time.Minute))
	require.NoError(t, store.AppendMessage(ctx, "alice", early))
	assert.False(t, early.CreatedAt.Before(now))

	page, err := store.ListMessages(ctx, "alice", MessageQuery{ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "later", page.Messages[0].Content)
	assert.Equal(t, "earlier clock", page.Messages[1].Content)
}

func TestListMessages_Pagination(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))
	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		require.NoError(t, store.AppendMessage(ctx, "alice",
			newMessage("conv-1", RoleUser, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Millisecond))))
	}

	page, err := store.ListMessages(ctx, "alice", MessageQuery{ConversationID: "conv-1", Limit: 500})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 10)
	assert.Equal(t, 10, page.Total)

	page, err = store.ListMessages(ctx, "alice", MessageQuery{ConversationID: "conv-1", Limit: 3, Offset: 8})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m8", page.Messages[0].Content)

	page, err = store.ListMessages(ctx, "alice", MessageQuery{ConversationID: "conv-1", Limit: 3, Order: OrderDesc})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, "m9", page.Messages[0].Content)
}

func TestListMessages_AgentTypeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))

	msg := newMessage("conv-1", RoleAssistant, "hello", time.Now())
	msg.AgentType = "finance-guide"
	require.NoError(t, store.AppendMessage(ctx, "alice", msg))
	require.NoError(t, store.AppendMessage(ctx, "alice", newMessage("conv-1", RoleUser, "thanks", time.Now())))

	page, err := store.ListMessages(ctx, "alice", MessageQuery{ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "finance-guide", page.Messages[0].AgentType)
	assert.Equal(t, "", page.Messages[1].AgentType)
}

func TestUpdateConversationTitle(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))

	got, err := store.UpdateConversationTitle(ctx, "alice", "conv-1", "Budgeting help")
	require.NoError(t, err)
	assert.Equal(t, "Budgeting help", got.Title)

	_, err = store.UpdateConversationTitle(ctx, "mallory", "conv-1", "pwned")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchConversation_NeverMovesBackwards(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	conv := newConversation("conv-1", "alice")
	require.NoError(t, store.CreateConversation(ctx, conv))

	later := conv.LastActivityAt.Add(time.Hour)
	require.NoError(t, store.TouchConversation(ctx, "alice", "conv-1", later))
	require.NoError(t, store.TouchConversation(ctx, "alice", "conv-1", conv.LastActivityAt))

	got, err := store.GetConversation(ctx, "alice", "conv-1")
	require.NoError(t, err)
	assert.True(t, got.LastActivityAt.Equal(later))

	assert.ErrorIs(t, store.TouchConversation(ctx, "mallory", "conv-1", later), ErrNotFound)
}

func TestListConversations_ByActivity(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	older := newConversation("conv-old", "alice")
	newer := newConversation("conv-new", "alice")
	newer.LastActivityAt = older.LastActivityAt.Add(time.Minute)
	require.NoError(t, store.CreateConversation(ctx, older))
	require.NoError(t, store.CreateConversation(ctx, newer))
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-bob", "bob")))

	convs, err := store.ListConversations(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "conv-new", convs[0].ID)
	assert.Equal(t, "conv-old", convs[1].ID)
}

func TestDeleteConversation_Cascades(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))
	for i := 0; i < 4; i++ {
		require.NoError(t, store.AppendMessage(ctx, "alice", newMessage("conv-1", RoleUser, "x", time.Now())))
	}

	_, err := store.DeleteConversation(ctx, "mallory", "conv-1")
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := store.DeleteConversation(ctx, "alice", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 4, deleted)

	_, err = store.GetConversation(ctx, "alice", "conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBulkDeleteConversations_AllOrNothing(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("owned", "alice")))
	require.NoError(t, store.CreateConversation(ctx, newConversation("foreign", "bob")))

	_, err := store.BulkDeleteConversations(ctx, "alice", []string{"owned", "foreign"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var notOwned *NotOwnedError
	require.True(t, errors.As(err, &notOwned))
	assert.Equal(t, []string{"foreign"}, notOwned.IDs)

	// Neither conversation was deleted
	_, err = store.GetConversation(ctx, "alice", "owned")
	assert.NoError(t, err)
	_, err = store.GetConversation(ctx, "bob", "foreign")
	assert.NoError(t, err)
}

func TestBulkDeleteConversations_Success(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, store.CreateConversation(ctx, newConversation(id, "alice")))
		require.NoError(t, store.AppendMessage(ctx, "alice", newMessage(id, RoleUser, "hi", time.Now())))
	}

	deleted, err := store.BulkDeleteConversations(ctx, "alice", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	convs, err := store.ListConversations(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestGetConversationStats(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, newConversation("conv-1", "alice")))

	empty, err := store.GetConversationStats(ctx, "alice", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.MessageCount)
	assert.Equal(t, 0.0, empty.AverageLength)
	assert.Nil(t, empty.FirstMessageAt)

	require.NoError(t, store.AppendMessage(ctx, "alice", newMessage("conv-1", RoleUser, "abcd", time.Now())))
	require.NoError(t, store.AppendMessage(ctx, "alice", newMessage("conv-1", RoleAssistant, "ab", time.Now())))

	stats, err := store.GetConversationStats(ctx, "alice", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MessageCount)
	assert.Equal(t, 6, stats.TotalChars)
	assert.Equal(t, 3.0, stats.AverageLength)
	assert.Equal(t, 1, stats.UserMessages)
	assert.Equal(t, 1, stats.AgentMessages)
	assert.NotNil(t, stats.LastMessageAt)
}

func TestAssessments_LatestWins(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	_, err := store.GetLatestAssessment(ctx, "alice", "finance")
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Now().UTC()
	score := 42.0
	require.NoError(t, store.SaveAssessment(ctx, &Assessment{
		ID: "a1", OwnerID: "alice", Domain: "finance", Summary: "first", Score: &score, CreatedAt: base,
	}))
	require.NoError(t, store.SaveAssessment(ctx, &Assessment{
		ID: "a2", OwnerID: "alice", Domain: "finance", Summary: "second", CreatedAt: base.Add(time.Second),
	}))
	require.NoError(t, store.SaveAssessment(ctx, &Assessment{
		ID: "a3", OwnerID: "bob", Domain: "finance", Summary: "bob's", CreatedAt: base.Add(time.Hour),
	}))

	got, err := store.GetLatestAssessment(ctx, "alice", "finance")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Summary)
	assert.Nil(t, got.Score)
}

func newConversation(id, owner string) *Conversation {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Conversation{
		ID:             id,
		OwnerID:        owner,
		Title:          "New Conversation",
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

var testMsgCounter int

func newMessage(convID string, role Role, content string, at time.Time) *Message {
	testMsgCounter++
	return &Message{
		ID:             fmt.Sprintf("msg-%d", testMsgCounter),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		CreatedAt:      at,
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
