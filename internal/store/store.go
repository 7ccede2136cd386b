// ABOUTME: Store interface and data types for mentor-gateway persistence
// ABOUTME: Defines Conversation, Message, Assessment and the owner-scoped Store contract

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist or is not
// owned by the caller. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when creating a conversation whose ID already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// NotOwnedError is returned by BulkDeleteConversations when one or more of the
// requested conversations is absent or belongs to another owner.
type NotOwnedError struct {
	IDs []string
}

func (e *NotOwnedError) Error() string {
	return fmt.Sprintf("conversations not found: %s", strings.Join(e.IDs, ", "))
}

// Is makes NotOwnedError match ErrNotFound.
func (e *NotOwnedError) Is(target error) bool {
	return target == ErrNotFound
}

// Role is the author role of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// SortOrder controls message ordering on reads
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// Conversation is a chat transcript owned by a single caller
type Conversation struct {
	ID             string
	OwnerID        string
	Title          string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Message is a single immutable turn half within a conversation
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	AgentType      string // empty for user messages
	CreatedAt      time.Time
	Seq            int64 // insertion sequence, assigned by the store
}

// MessageQuery selects a page of messages from a conversation
type MessageQuery struct {
	ConversationID string
	Limit          int
	Offset         int
	Order          SortOrder
}

// MessagePage is a page of messages plus the conversation's total message count
type MessagePage struct {
	Messages []*Message
	Total    int
}

// ConversationStats aggregates content statistics over all messages of a conversation
type ConversationStats struct {
	MessageCount   int
	TotalChars     int
	AverageLength  float64
	UserMessages   int
	AgentMessages  int
	FirstMessageAt *time.Time
	LastMessageAt  *time.Time
}

// Assessment is a self-assessment result for one domain; the newest row per
// (owner, domain) wins.
type Assessment struct {
	ID        string
	OwnerID   string
	Domain    string
	Summary   string
	Score     *float64
	CreatedAt time.Time
}

// Store defines conversation, message and assessment persistence.
// Every method that targets a conversation is scoped by owner.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, ownerID, id string) (*Conversation, error)
	ListConversations(ctx context.Context, ownerID string, limit int) ([]*Conversation, error)
	UpdateConversationTitle(ctx context.Context, ownerID, id, title string) (*Conversation, error)
	TouchConversation(ctx context.Context, ownerID, id string, at time.Time) error
	DeleteConversation(ctx context.Context, ownerID, id string) (int, error)
	BulkDeleteConversations(ctx context.Context, ownerID string, ids []string) (int, error)

	// Messages
	AppendMessage(ctx context.Context, ownerID string, msg *Message) error
	ListMessages(ctx context.Context, ownerID string, q MessageQuery) (*MessagePage, error)
	GetConversationStats(ctx context.Context, ownerID, id string) (*ConversationStats, error)

	// Assessments
	SaveAssessment(ctx context.Context, a *Assessment) error
	GetLatestAssessment(ctx context.Context, ownerID, domain string) (*Assessment, error)

	// Ping checks that the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
