// ABOUTME: Tests for the Context Assembler
// ABOUTME: Verifies bounded windows, chronological order and ownership errors

package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mentor-gateway/internal/store"
)

func seedConversation(t *testing.T, s *store.MockStore, owner, id string, n int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.CreateConversation(ctx, &store.Conversation{
		ID: id, OwnerID: owner, Title: "New Conversation", CreatedAt: now, LastActivityAt: now,
	}))
	for i := 0; i < n; i++ {
		role := store.RoleUser
		agentType := ""
		if i%2 == 1 {
			role = store.RoleAssistant
			agentType = "router"
		}
		require.NoError(t, s.AppendMessage(ctx, owner, &store.Message{
			ID:             fmt.Sprintf("%s-%d", id, i),
			ConversationID: id,
			Role:           role,
			Content:        fmt.Sprintf("m%d", i),
			AgentType:      agentType,
			CreatedAt:      now.Add(time.Duration(i) * time.Millisecond),
		}))
	}
}

func TestAssembler_AgentContextIsBoundedAndChronological(t *testing.T) {
	s := store.NewMockStore()
	seedConversation(t, s, "alice", "conv-1", 25)

	a := New(s, 10, 20)
	turns, err := a.AgentContext(context.Background(), "alice", "conv-1")
	require.NoError(t, err)
	require.Len(t, turns, 10)
	assert.Equal(t, "m15", turns[0].Content)
	assert.Equal(t, "m24", turns[9].Content)
	assert.Equal(t, "router", turns[0].AgentType)
	assert.Equal(t, "user", turns[9].Role)
}

func TestAssembler_WindowIsIndependentOfDisplayLimit(t *testing.T) {
	s := store.NewMockStore()
	seedConversation(t, s, "alice", "conv-1", 25)

	a := New(s, 20, 5)
	assert.Equal(t, 5, a.DisplayLimit())
	turns, err := a.AgentContext(context.Background(), "alice", "conv-1")
	require.NoError(t, err)
	require.Len(t, turns, 20)
	assert.Equal(t, "m5", turns[0].Content)
	assert.Equal(t, "m24", turns[19].Content)
}

func TestAssembler_ShortConversation(t *testing.T) {
	s := store.NewMockStore()
	seedConversation(t, s, "alice", "conv-1", 3)

	turns, err := New(s, 0, 0).AgentContext(context.Background(), "alice", "conv-1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "m0", turns[0].Content)

	seedConversation(t, s, "alice", "empty", 0)
	turns, err = New(s, 0, 0).AgentContext(context.Background(), "alice", "empty")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAssembler_Defaults(t *testing.T) {
	a := New(store.NewMockStore(), -1, 0)
	assert.Equal(t, DefaultContextWindow, a.contextWindow)
	assert.Equal(t, DefaultDisplayLimit, a.DisplayLimit())
}

func TestAssembler_ForeignOwner(t *testing.T) {
	s := store.NewMockStore()
	seedConversation(t, s, "alice", "conv-1", 2)

	_, err := New(s, 10, 20).AgentContext(context.Background(), "bob", "conv-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
