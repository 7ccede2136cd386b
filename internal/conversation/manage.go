// ABOUTME: Conversation management - paged reads, rename, delete, bulk delete, listing
// ABOUTME: Also stores and reads per-domain self-assessments (latest wins)

package conversation

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/mentor-gateway/internal/agent"
	"github.com/2389/mentor-gateway/internal/store"
)

// Bulk delete and assessment limits.
const (
	MaxBulkDelete        = 50
	MaxAssessmentSummary = 2000
)

// PageRequest selects a page of messages. A nil Limit selects the display default.
type PageRequest struct {
	Limit  *int
	Offset int
	Order  string
}

// Pagination describes the returned page.
type Pagination struct {
	Limit      int
	Offset     int
	Total      int
	HasMore    bool
	NextOffset *int
}

// ConversationView is a conversation with one page of its messages.
type ConversationView struct {
	Conversation *store.Conversation
	Messages     []*store.Message
	Pagination   Pagination
	Stats        *store.ConversationStats
}

func validateID(v *ValidationError, field, id string) {
	if _, err := uuid.Parse(id); err != nil {
		v.add(field, "must be a valid UUID")
	}
}

// GetConversation returns conversation metadata, a page of messages and statistics.
func (s *Service) GetConversation(ctx context.Context, ownerID, id string, page PageRequest) (*ConversationView, error) {
	v := &ValidationError{}
	validateID(v, "id", id)

	limit := s.history.DisplayLimit()
	if page.Limit != nil {
		limit = *page.Limit
		if limit < 1 {
			v.add("limit", "must be at least 1")
		}
	}
	if limit > s.maxPageLimit {
		limit = s.maxPageLimit
	}
	if page.Offset < 0 {
		v.add("offset", "must not be negative")
	}
	order := store.OrderAsc
	switch strings.ToLower(page.Order) {
	case "", "asc":
	case "desc":
		order = store.OrderDesc
	default:
		v.add("order", "must be asc or desc")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	conv, err := s.store.GetConversation(ctx, ownerID, id)
	if err != nil {
		return nil, storeErr("load conversation", err)
	}
	msgs, err := s.store.ListMessages(ctx, ownerID, store.MessageQuery{
		ConversationID: id,
		Limit:          limit,
		Offset:         page.Offset,
		Order:          order,
	})
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	stats, err := s.store.GetConversationStats(ctx, ownerID, id)
	if err != nil {
		return nil, storeErr("conversation stats", err)
	}

	p := Pagination{
		Limit:  limit,
		Offset: page.Offset,
		Total:  msgs.Total,
	}
	if next := page.Offset + len(msgs.Messages); next < msgs.Total {
		p.HasMore = true
		p.NextOffset = &next
	}

	return &ConversationView{
		Conversation: conv,
		Messages:     msgs.Messages,
		Pagination:   p,
		Stats:        stats,
	}, nil
}

// ListConversations returns the caller's conversations, most recently active first.
func (s *Service) ListConversations(ctx context.Context, ownerID string, limit int) ([]*store.Conversation, error) {
	if limit <= 0 {
		limit = s.history.DisplayLimit()
	}
	if limit > s.maxPageLimit {
		limit = s.maxPageLimit
	}
	convs, err := s.store.ListConversations(ctx, ownerID, limit)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	if convs == nil {
		convs = []*store.Conversation{}
	}
	return convs, nil
}

// UpdateConversation applies a partial update. At least one field is required.
func (s *Service) UpdateConversation(ctx context.Context, ownerID, id string, title *string) (*store.Conversation, error) {
	v := &ValidationError{}
	validateID(v, "id", id)
	if title == nil {
		v.add("body", "at least one field must be provided")
	} else {
		trimmed := strings.TrimSpace(*title)
		n := utf8.RuneCountInString(trimmed)
		if n < 1 || n > MaxTitleLength {
			v.add("title", "must be between 1 and %d characters", MaxTitleLength)
		}
		title = &trimmed
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	conv, err := s.store.UpdateConversationTitle(ctx, ownerID, id, *title)
	if err != nil {
		return nil, storeErr("update conversation", err)
	}
	s.logger.Debug("conversation renamed", "conversation_id", id)
	return conv, nil
}

// DeleteConversation removes a conversation and returns how many messages went with it.
func (s *Service) DeleteConversation(ctx context.Context, ownerID, id string) (int, error) {
	v := &ValidationError{}
	validateID(v, "id", id)
	if err := v.err(); err != nil {
		return 0, err
	}

	n, err := s.store.DeleteConversation(ctx, ownerID, id)
	if err != nil {
		return 0, storeErr("delete conversation", err)
	}
	s.logger.Info("conversation deleted", "conversation_id", id, "messages", n)
	return n, nil
}

// BulkDeleteResult reports a successful bulk delete.
type BulkDeleteResult struct {
	Conversations int
	Messages      int
}

// BulkDeleteConversations deletes every listed conversation or none. When any
// id is not owned by the caller the returned error is a *store.NotOwnedError.
func (s *Service) BulkDeleteConversations(ctx context.Context, ownerID string, ids []string, confirm bool) (*BulkDeleteResult, error) {
	v := &ValidationError{}
	if !confirm {
		v.add("confirm", "must be true")
	}
	if len(ids) < 1 || len(ids) > MaxBulkDelete {
		v.add("chatIds", "must contain between 1 and %d ids", MaxBulkDelete)
	}
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			v.add("chatIds", "%q is not a valid UUID", id)
			continue
		}
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	n, err := s.store.BulkDeleteConversations(ctx, ownerID, unique)
	if err != nil {
		return nil, storeErr("bulk delete", err)
	}
	s.logger.Info("conversations bulk deleted", "owner_id", ownerID, "count", len(unique), "messages", n)
	return &BulkDeleteResult{Conversations: len(unique), Messages: n}, nil
}

// SaveAssessment records a new assessment; the newest per (owner, domain) wins.
func (s *Service) SaveAssessment(ctx context.Context, ownerID, domain, summary string, score *float64) (*store.Assessment, error) {
	v := &ValidationError{}
	if _, ok := agent.ForDomain(domain); !ok {
		v.add("domain", "must be one of digital, finance, health")
	}
	summary = strings.TrimSpace(summary)
	if n := utf8.RuneCountInString(summary); n < 1 || n > MaxAssessmentSummary {
		v.add("summary", "must be between 1 and %d characters", MaxAssessmentSummary)
	}
	if score != nil && (*score < 0 || *score > 100) {
		v.add("score", "must be between 0 and 100")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	a := &store.Assessment{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Domain:    domain,
		Summary:   summary,
		Score:     score,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveAssessment(ctx, a); err != nil {
		return nil, storeErr("save assessment", err)
	}
	return a, nil
}

// LatestAssessment returns the caller's newest assessment for domain.
func (s *Service) LatestAssessment(ctx context.Context, ownerID, domain string) (*store.Assessment, error) {
	if _, ok := agent.ForDomain(domain); !ok {
		return nil, &ValidationError{Fields: []FieldError{{Field: "domain", Message: "must be one of digital, finance, health"}}}
	}
	a, err := s.store.GetLatestAssessment(ctx, ownerID, domain)
	if err != nil {
		return nil, storeErr("load assessment", err)
	}
	return a, nil
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
