// ABOUTME: Agent Gateway invoking router and specialist backends with a bounded deadline
// ABOUTME: Converts every backend error, timeout or panic into a failure Result

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrUnknownAgent indicates the requested agent has no profile.
var ErrUnknownAgent = errors.New("unknown agent")

// ErrEmptyResponse indicates the backend returned no text.
var ErrEmptyResponse = errors.New("agent returned empty response")

// Turn is one prior message supplied to an agent as context.
type Turn struct {
	Role      string // "user" or "assistant"
	Content   string
	AgentType string
}

// Request is a single agent invocation.
type Request struct {
	AgentID        ID
	Message        string
	Context        []Turn
	OwnerID        string
	ConversationID string
	// Assessment is the caller's latest self-assessment summary for the
	// specialist's domain, if any.
	Assessment string
}

// Result is the discriminated outcome of an invocation.
type Result struct {
	Success   bool
	Text      string
	AgentID   ID
	AgentName string
	Err       error
	Duration  time.Duration
}

// Backend produces a reply for an agent profile.
type Backend interface {
	Complete(ctx context.Context, profile Profile, req *Request) (string, error)
}

// Invoker is what callers need from the gateway.
type Invoker interface {
	Invoke(ctx context.Context, req *Request) Result
}

// Gateway dispatches requests to a Backend.
type Gateway struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
}

// NewGateway creates a Gateway. A zero timeout disables the deadline.
func NewGateway(backend Backend, timeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		backend: backend,
		timeout: timeout,
		logger:  logger.With("component", "agent"),
	}
}

// Invoke calls the backend for req.AgentID. It never panics and never
// returns an error directly; failures are reported through Result.
func (g *Gateway) Invoke(ctx context.Context, req *Request) (res Result) {
	start := time.Now()
	res.AgentID = req.AgentID

	profile, ok := Lookup(req.AgentID)
	if !ok {
		res.Err = fmt.Errorf("%w: %q", ErrUnknownAgent, req.AgentID)
		return res
	}
	res.AgentName = profile.Name

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Text = ""
			res.Err = fmt.Errorf("agent %s panicked: %v", req.AgentID, r)
		}
		res.Duration = time.Since(start)
		if res.Success {
			g.logger.Debug("agent replied",
				"agent_id", req.AgentID,
				"conversation_id", req.ConversationID,
				"duration", res.Duration)
		} else {
			g.logger.Warn("agent invocation failed",
				"agent_id", req.AgentID,
				"conversation_id", req.ConversationID,
				"duration", res.Duration,
				"error", res.Err)
		}
	}()

	text, err := g.backend.Complete(ctx, profile, req)
	if err != nil {
		res.Err = err
		return res
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Err = ctxErr
		return res
	}
	text = strings.TrimSpace(text)
	if text == "" {
		res.Err = ErrEmptyResponse
		return res
	}

	res.Success = true
	res.Text = text
	return res
}

// FallbackText is the deterministic reply used when an agent could not answer.
func FallbackText(id ID) string {
	name := string(id)
	if p, ok := Lookup(id); ok {
		name = p.Name
	}
	return fmt.Sprintf("I'm sorry, the %s is unavailable right now. Your message has been saved, please try again in a moment.", name)
}

var _ Invoker = (*Gateway)(nil)
