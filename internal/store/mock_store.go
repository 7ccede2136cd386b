// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by conversation ID
	messages      map[string][]*Message    // keyed by conversation ID
	assessments   map[string][]*Assessment // keyed by "owner:domain", append order
	seq           int64

	// AppendErr, when set, is returned by AppendMessage for messages with a matching role.
	AppendErr     error
	AppendErrRole Role
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		assessments:   make(map[string][]*Assessment),
	}
}

func (m *MockStore) ownedLocked(ownerID, id string) (*Conversation, bool) {
	c, ok := m.conversations[id]
	if !ok || c.OwnerID != ownerID {
		return nil, false
	}
	return c, true
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conv.ID]; exists {
		return ErrDuplicateConversation
	}
	c := *conv
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation owned by ownerID.
func (m *MockStore) GetConversation(ctx context.Context, ownerID, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.ownedLocked(ownerID, id)
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// ListConversations returns the owner's conversations, most recently active first.
func (m *MockStore) ListConversations(ctx context.Context, ownerID string, limit int) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Conversation
	for _, c := range m.conversations {
		if c.OwnerID == ownerID {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].LastActivityAt.Equal(result[j].LastActivityAt) {
			return result[i].LastActivityAt.After(result[j].LastActivityAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpdateConversationTitle renames a conversation.
func (m *MockStore) UpdateConversationTitle(ctx context.Context, ownerID, id, title string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.ownedLocked(ownerID, id)
	if !ok {
		return nil, ErrNotFound
	}
	c.Title = title
	result := *c
	return &result, nil
}

// TouchConversation bumps the last-activity timestamp.
func (m *MockStore) TouchConversation(ctx context.Context, ownerID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.ownedLocked(ownerID, id)
	if !ok {
		return ErrNotFound
	}
	if at.After(c.LastActivityAt) {
		c.LastActivityAt = at
	}
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (m *MockStore) DeleteConversation(ctx context.Context, ownerID, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ownedLocked(ownerID, id); !ok {
		return 0, ErrNotFound
	}
	n := len(m.messages[id])
	delete(m.messages, id)
	delete(m.conversations, id)
	return n, nil
}

// BulkDeleteConversations deletes all listed conversations or none of them.
func (m *MockStore) BulkDeleteConversations(ctx context.Context, ownerID string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var missing []string
	for _, id := range ids {
		if _, ok := m.ownedLocked(ownerID, id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return 0, &NotOwnedError{IDs: missing}
	}

	total := 0
	for _, id := range ids {
		total += len(m.messages[id])
		delete(m.messages, id)
		delete(m.conversations, id)
	}
	return total, nil
}

// AppendMessage adds a message to an owned conversation.
func (m *MockStore) AppendMessage(ctx context.Context, ownerID string, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendErr != nil && (m.AppendErrRole == "" || m.AppendErrRole == msg.Role) {
		return m.AppendErr
	}
	if _, ok := m.ownedLocked(ownerID, msg.ConversationID); !ok {
		return ErrNotFound
	}

	existing := m.messages[msg.ConversationID]
	if n := len(existing); n > 0 && msg.CreatedAt.Before(existing[n-1].CreatedAt) {
		msg.CreatedAt = existing[n-1].CreatedAt
	}

	m.seq++
	msg.Seq = m.seq
	cp := *msg
	m.messages[msg.ConversationID] = append(existing, &cp)
	return nil
}

// ListMessages returns a page of messages in the requested order.
func (m *MockStore) ListMessages(ctx context.Context, ownerID string, q MessageQuery) (*MessagePage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.ownedLocked(ownerID, q.ConversationID); !ok {
		return nil, ErrNotFound
	}

	// Stored in insertion order with clamped timestamps, so it is already ascending.
	all := m.messages[q.ConversationID]
	ordered := make([]*Message, 0, len(all))
	if q.Order == OrderDesc {
		for i := len(all) - 1; i >= 0; i-- {
			ordered = append(ordered, all[i])
		}
	} else {
		ordered = append(ordered, all...)
	}

	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(ordered) {
		offset = len(ordered)
	}
	end := len(ordered)
	if q.Limit > 0 && offset+q.Limit < end {
		end = offset + q.Limit
	}

	page := &MessagePage{Total: len(all), Messages: make([]*Message, 0, end-offset)}
	for _, msg := range ordered[offset:end] {
		cp := *msg
		page.Messages = append(page.Messages, &cp)
	}
	return page, nil
}

// GetConversationStats computes aggregate statistics over a conversation's messages.
func (m *MockStore) GetConversationStats(ctx context.Context, ownerID, id string) (*ConversationStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.ownedLocked(ownerID, id); !ok {
		return nil, ErrNotFound
	}

	var stats ConversationStats
	msgs := m.messages[id]
	for _, msg := range msgs {
		stats.MessageCount++
		stats.TotalChars += len(msg.Content)
		if msg.Role == RoleUser {
			stats.UserMessages++
		} else {
			stats.AgentMessages++
		}
	}
	if len(msgs) > 0 {
		stats.AverageLength = float64(stats.TotalChars) / float64(stats.MessageCount)
		first := msgs[0].CreatedAt
		last := msgs[len(msgs)-1].CreatedAt
		stats.FirstMessageAt = &first
		stats.LastMessageAt = &last
	}
	return &stats, nil
}

// SaveAssessment appends an assessment for (owner, domain).
func (m *MockStore) SaveAssessment(ctx context.Context, a *Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	key := a.OwnerID + ":" + a.Domain
	m.assessments[key] = append(m.assessments[key], &cp)
	return nil
}

// GetLatestAssessment returns the most recently saved assessment for (owner, domain).
func (m *MockStore) GetLatestAssessment(ctx context.Context, ownerID, domain string) (*Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.assessments[ownerID+":"+domain]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	latest := list[0]
	for _, a := range list[1:] {
		if !a.CreatedAt.Before(latest.CreatedAt) {
			latest = a
		}
	}
	cp := *latest
	return &cp, nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

// MessageCount returns the number of stored messages for a conversation, ignoring ownership.
func (m *MockStore) MessageCount(conversationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages[conversationID])
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
