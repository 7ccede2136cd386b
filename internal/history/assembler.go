// ABOUTME: Context Assembler building bounded chronological context for agent calls
// ABOUTME: Reads newest-first from the store and reverses into reading order

package history

import (
	"context"
	"fmt"

	"github.com/2389/mentor-gateway/internal/agent"
	"github.com/2389/mentor-gateway/internal/store"
)

// Default window sizes.
const (
	DefaultContextWindow = 10
	DefaultDisplayLimit  = 20
)

// MessageLister is what the assembler needs from storage.
type MessageLister interface {
	ListMessages(ctx context.Context, ownerID string, q store.MessageQuery) (*store.MessagePage, error)
}

// Assembler fetches recent messages for context injection. It also owns the
// default page size for history display.
type Assembler struct {
	store         MessageLister
	contextWindow int
	displayLimit  int
}

// New creates an Assembler. Non-positive sizes fall back to the defaults.
func New(s MessageLister, contextWindow, displayLimit int) *Assembler {
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}
	if displayLimit <= 0 {
		displayLimit = DefaultDisplayLimit
	}
	return &Assembler{store: s, contextWindow: contextWindow, displayLimit: displayLimit}
}

// DisplayLimit returns the configured history-display size.
func (a *Assembler) DisplayLimit() int { return a.displayLimit }

// recent returns up to n of the conversation's most recent messages in
// chronological order.
func (a *Assembler) recent(ctx context.Context, ownerID, conversationID string, n int) ([]*store.Message, error) {
	page, err := a.store.ListMessages(ctx, ownerID, store.MessageQuery{
		ConversationID: conversationID,
		Limit:          n,
		Order:          store.OrderDesc,
	})
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}

	msgs := page.Messages
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// AgentContext returns the context window as agent turns.
func (a *Assembler) AgentContext(ctx context.Context, ownerID, conversationID string) ([]agent.Turn, error) {
	msgs, err := a.recent(ctx, ownerID, conversationID, a.contextWindow)
	if err != nil {
		return nil, err
	}
	turns := make([]agent.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, agent.Turn{
			Role:      string(m.Role),
			Content:   m.Content,
			AgentType: m.AgentType,
		})
	}
	return turns, nil
}
