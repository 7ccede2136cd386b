// ABOUTME: Tests for conversation management operations
// ABOUTME: Covers pagination metadata, rename, delete, bulk delete atomicity and assessments

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mentor-gateway/internal/store"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// seedTurns runs n turns for owner and returns the conversation id
func seedTurns(t *testing.T, svc *Service, owner string, n int) string {
	t.Helper()
	var convID *string
	for i := 0; i < n; i++ {
		res, err := svc.SendTurn(context.Background(), &TurnRequest{
			OwnerID:        owner,
			Message:        fmt.Sprintf("question %d", i),
			ConversationID: convID,
		})
		require.NoError(t, err)
		convID = &res.ConversationID
	}
	return *convID
}

func TestService_GetConversation_PaginationBoundary(t *testing.T) {
	testStore := createTestStore(t)
	svc := newTestService(t, testStore, newFakeAgents())
	convID := seedTurns(t, svc, "alice", 5) // 10 messages

	view, err := svc.GetConversation(context.Background(), "alice", convID, PageRequest{Limit: intPtr(500)})
	require.NoError(t, err)
	assert.Len(t, view.Messages, 10)
	assert.Equal(t, 10, view.Pagination.Total)
	assert.False(t, view.Pagination.HasMore)
	assert.Nil(t, view.Pagination.NextOffset)
	assert.Equal(t, 500, view.Pagination.Limit)
}

func TestService_GetConversation_Paging(t *testing.T) {
	testStore := createTestStore(t)
	svc := newTestService(t, testStore, newFakeAgents())
	convID := seedTurns(t, svc, "alice", 5)
	ctx := context.Background()

	view, err := svc.GetConversation(ctx, "alice", convID, PageRequest{Limit: intPtr(4), Offset: 4})
	require.NoError(t, err)
	require.Len(t, view.Messages, 4)
	assert.True(t, view.Pagination.HasMore)
	require.NotNil(t, view.Pagination.NextOffset)
	assert.Equal(t, 8, *view.Pagination.NextOffset)
	assert.Equal(t, "question 2", view.Messages[0].Content)

	desc, err := svc.GetConversation(ctx, "alice", convID, PageRequest{Limit: intPtr(2), Order: "DESC"})
	require.NoError(t, err)
	require.Len(t, desc.Messages, 2)
	assert.Equal(t, store.RoleAssistant, desc.Messages[0].Role)
	assert.False(t, desc.Messages[0].CreatedAt.Before(desc.Messages[1].CreatedAt))

	assert.Equal(t, 10, view.Stats.MessageCount)
	assert.Greater(t, view.Stats.AverageLength, 0.0)
}

func TestService_GetConversation_DefaultAndClampedLimit(t *testing.T) {
	svc := New(store.NewMockStore(), newFakeAgents(), nil, Options{DisplayLimit: 3, MaxPageLimit: 5}, nil)
	convID := seedTurns(t, svc, "alice", 4)
	ctx := context.Background()

	view, err := svc.GetConversation(ctx, "alice", convID, PageRequest{})
	require.NoError(t, err)
	assert.Len(t, view.Messages, 3)
	assert.Equal(t, 3, view.Pagination.Limit)

	view, err = svc.GetConversation(ctx, "alice", convID, PageRequest{Limit: intPtr(50)})
	require.NoError(t, err)
	assert.Len(t, view.Messages, 5)
	assert.Equal(t, 5, view.Pagination.Limit)
}

func TestService_GetConversation_Validation(t *testing.T) {
	svc := newTestService(t, store.NewMockStore(), newFakeAgents())
	ctx := context.Background()
	id := uuid.New().String()

	tests := []struct {
		name string
		id   string
		page PageRequest
	}{
		{"bad id", "nope", PageRequest{}},
		{"zero limit", id, PageRequest{Limit: intPtr(0)}},
		{"negative offset", id, PageRequest{Offset: -1}},
		{"bad order", id, PageRequest{Order: "sideways"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetConversation(ctx, "alice", tt.id, tt.page)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
}

func TestService_GetConversation_ForeignOwner(t *testing.T) {
	svc := newTestService(t, store.NewMockStore(), newFakeAgents())
	convID := seedTurns(t, svc, "alice", 1)

	_, err := svc.GetConversation(context.Background(), "bob", convID, PageRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_UpdateConversation(t *testing.T) {
	svc := newTestService(t, store.NewMockStore(), newFakeAgents())
	convID := seedTurns(t, svc, "alice", 1)
	ctx := context.Background()

	title := "  Money matters  "
	conv, err := svc.UpdateConversation(ctx, "alice", convID, &title)
	require.NoError(t, err)
	assert.Equal(t, "Money matters", conv.Title)

	var verr *ValidationError
	_, err = svc.UpdateConversation(ctx, "alice", convID, nil)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "body", verr.Fields[0].Field)

	empty := "   "
	_, err = svc.UpdateConversation(ctx, "alice", convID, &empty)
	assert.True(t, errors.As(err, &verr))

	long := strings.Repeat("t", MaxTitleLength+1)
	_, err = svc.UpdateConversation(ctx, "alice", convID, &long)
	assert.True(t, errors.As(err, &verr))

	_, err = svc.UpdateConversation(ctx, "bob", convID, &title)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_DeleteConversation(t *testing.T) {
	testStore := createTestStore(t)
	svc := newTestService(t, testStore, newFakeAgents())
	convID := seedTurns(t, svc, "alice", 3)
	ctx := context.Background()

	_, err := svc.DeleteConversation(ctx, "bob", convID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := svc.DeleteConversation(ctx, "alice", convID)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	_, err = svc.GetConversation(ctx, "alice", convID, PageRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_BulkDelete_AtomicOnForeignID(t *testing.T) {
	testStore := createTestStore(t)
	svc := newTestService(t, testStore, newFakeAgents())
	owned := seedTurns(t, svc, "alice", 1)
	foreign := seedTurns(t, svc, "bob", 1)
	ctx := context.Background()

	_, err := svc.BulkDeleteConversations(ctx, "alice", []string{owned, foreign}, true)
	require.ErrorIs(t, err, ErrNotFound)
	var notOwned *store.NotOwnedError
	require.True(t, errors.As(err, &notOwned))
	assert.Equal(t, []string{foreign}, notOwned.IDs)

	_, err = svc.GetConversation(ctx, "alice", owned, PageRequest{})
	assert.NoError(t, err)
	_, err = svc.GetConversation(ctx, "bob", foreign, PageRequest{})
	assert.NoError(t, err)
}

func TestService_BulkDelete_Success(t *testing.T) {
	testStore := createTestStore(t)
	svc := newTestService(t, testStore, newFakeAgents())
	a := seedTurns(t, svc, "alice", 1)
	b := seedTurns(t, svc, "alice", 2)

	res, err := svc.BulkDeleteConversations(context.Background(), "alice", []string{a, b, a}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Conversations)
	assert.Equal(t, 6, res.Messages)
}

func TestService_BulkDelete_Validation(t *testing.T) {
	svc := newTestService(t, store.NewMockStore(), newFakeAgents())
	ctx := context.Background()

	tooMany := make([]string, MaxBulkDelete+1)
	for i := range tooMany {
		tooMany[i] = uuid.New().String()
	}

	cases := map[string]struct {
		ids     []string
		confirm bool
	}{
		"unconfirmed": {[]string{uuid.New().String()}, false},
		"empty":       {nil, true},
		"too many":    {tooMany, true},
		"bad id":      {[]string{"x"}, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.BulkDeleteConversations(ctx, "alice", tc.ids, tc.confirm)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
}

func TestService_ListConversations(t *testing.T) {
	svc := newTestService(t, store.NewMockStore(), newFakeAgents())
	ctx := context.Background()

	convs, err := svc.ListConversations(ctx, "alice", 0)
	require.NoError(t, err)
	assert.NotNil(t, convs)
	assert.Empty(t, convs)

	first := seedTurns(t, svc, "alice", 1)
	second := seedTurns(t, svc, "alice", 1)
	seedTurns(t, svc, "bob", 1)

	convs, err = svc.ListConversations(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.ElementsMatch(t, []string{first, second}, []string{convs[0].ID, convs[1].ID})
}

func TestService_Assessments(t *testing.T) {
	svc := newTestService(t, store.NewMockStore(), newFakeAgents())
	ctx := context.Background()

	_, err := svc.LatestAssessment(ctx, "alice", "digital")
	assert.ErrorIs(t, err, ErrNotFound)

	score := 80.0
	_, err = svc.SaveAssessment(ctx, "alice", "digital", "first", &score)
	require.NoError(t, err)
	_, err = svc.SaveAssessment(ctx, "alice", "digital", "second", nil)
	require.NoError(t, err)

	got, err := svc.LatestAssessment(ctx, "alice", "digital")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Summary)

	var verr *ValidationError
	bad := 101.0
	_, err = svc.SaveAssessment(ctx, "alice", "digital", "x", &bad)
	assert.True(t, errors.As(err, &verr))
	_, err = svc.SaveAssessment(ctx, "alice", "astrology", "x", nil)
	assert.True(t, errors.As(err, &verr))
	_, err = svc.SaveAssessment(ctx, "alice", "health", "", nil)
	assert.True(t, errors.As(err, &verr))
	_, err = svc.LatestAssessment(ctx, "alice", "astrology")
	assert.True(t, errors.As(err, &verr))
}
