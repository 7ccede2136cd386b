// ABOUTME: Turn orchestrator sequencing ownership, context, agents and persistence
// ABOUTME: Record first, then act - the user message is saved before any agent call

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/mentor-gateway/internal/agent"
	"github.com/2389/mentor-gateway/internal/history"
	"github.com/2389/mentor-gateway/internal/routing"
	"github.com/2389/mentor-gateway/internal/store"
)

// Limits on user input.
const (
	MaxMessageLength = 4000
	MaxTitleLength   = 200
	DefaultTitle     = "New Conversation"
)

// Options tunes the service. Zero values select defaults.
type Options struct {
	ContextWindow int
	DisplayLimit  int
	MaxPageLimit  int
	Now           func() time.Time
}

// Service is the Turn Orchestrator plus conversation management.
type Service struct {
	store        store.Store
	history      *history.Assembler
	agents       agent.Invoker
	classifier   routing.Classifier
	maxPageLimit int
	now          func() time.Time
	logger       *slog.Logger
}

// New creates a Service.
func New(s store.Store, agents agent.Invoker, classifier routing.Classifier, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = routing.NewPatternClassifier()
	}
	if opts.MaxPageLimit <= 0 {
		opts.MaxPageLimit = 1000
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:        s,
		history:      history.New(s, opts.ContextWindow, opts.DisplayLimit),
		agents:       agents,
		classifier:   classifier,
		maxPageLimit: opts.MaxPageLimit,
		now:          opts.Now,
		logger:       logger.With("component", "conversation"),
	}
}

// TurnRequest is one user submission.
type TurnRequest struct {
	OwnerID        string
	Message        string
	ConversationID *string // nil starts a new conversation
	AgentID        *string // nil lets the router decide
}

// TurnResult is the assistant's answer to a turn.
type TurnResult struct {
	ConversationID string
	UserMessageID  string
	MessageID      string
	Response       string
	AgentID        agent.ID
	AgentName      string
	// Created is true when the turn started a new conversation.
	Created bool
	// Fallback is true when the reply did not come from the intended agent.
	Fallback bool
	Decision *routing.Decision
}

type turnState int

const (
	awaitingRouter turnState = iota
	awaitingSpecialist
	answered
)

// turn carries the state machine for one submission.
type turn struct {
	state      turnState
	target     agent.ID
	routerText string
	reply      string
	replyAgent agent.ID
	fallback   bool
	decision   *routing.Decision
}

func validateTurn(req *TurnRequest) (agent.ID, error) {
	v := &ValidationError{}

	if strings.TrimSpace(req.Message) == "" {
		v.add("message", "must not be empty")
	} else if n := utf8.RuneCountInString(req.Message); n > MaxMessageLength {
		v.add("message", "must be at most %d characters, got %d", MaxMessageLength, n)
	}

	// A supplied but empty value is malformed, not absent.
	if req.ConversationID != nil {
		if _, err := uuid.Parse(*req.ConversationID); err != nil {
			v.add("conversationId", "must be a valid UUID")
		}
	}

	var id agent.ID
	if req.AgentID != nil {
		parsed, err := agent.Parse(*req.AgentID)
		if err != nil {
			v.add("agentId", "must be one of %s", strings.Join(agent.Names(), ", "))
		}
		id = parsed
	}

	return id, v.err()
}

// SendTurn runs one turn. Validation and ownership failures return before
// any side effect. Once the user message is stored, agent failures degrade
// to a fallback reply and only store failures produce an error.
func (s *Service) SendTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	chosen, err := validateTurn(req)
	if err != nil {
		return nil, err
	}

	// 1. Resolve or create conversation
	conv, created, err := s.resolveConversation(ctx, req.OwnerID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	// 2. Assemble context from prior turns
	turns, err := s.history.AgentContext(ctx, req.OwnerID, conv.ID)
	if err != nil {
		return nil, storeErr("assemble context", err)
	}

	// 3. Record user message FIRST
	userMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        req.Message,
		CreatedAt:      s.now(),
	}
	if err := s.store.AppendMessage(ctx, req.OwnerID, userMsg); err != nil {
		return nil, storeErr("record user message", err)
	}

	s.logger.Debug("user message recorded",
		"conversation_id", conv.ID,
		"message_id", userMsg.ID,
		"owner_id", req.OwnerID)

	// 4. Run the router/specialist state machine
	t := &turn{state: awaitingRouter}
	if chosen != "" && chosen != agent.Router {
		t.state = awaitingSpecialist
		t.target = chosen
	}
	agentReq := agent.Request{
		Message:        req.Message,
		Context:        turns,
		OwnerID:        req.OwnerID,
		ConversationID: conv.ID,
	}
	for t.state != answered {
		switch t.state {
		case awaitingRouter:
			s.runRouter(ctx, t, agentReq)
		case awaitingSpecialist:
			s.runSpecialist(ctx, t, agentReq)
		}
	}

	// 5. Record assistant message, then bump activity
	assistantMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Content:        t.reply,
		AgentType:      string(t.replyAgent),
		CreatedAt:      s.now(),
	}
	if err := s.store.AppendMessage(ctx, req.OwnerID, assistantMsg); err != nil {
		return nil, storeErr("record assistant message", err)
	}
	if err := s.store.TouchConversation(ctx, req.OwnerID, conv.ID, assistantMsg.CreatedAt); err != nil {
		s.logger.Warn("failed to update conversation activity",
			"conversation_id", conv.ID,
			"error", err)
	}

	s.logger.Info("turn answered",
		"conversation_id", conv.ID,
		"agent_id", t.replyAgent,
		"fallback", t.fallback,
		"created", created)

	return &TurnResult{
		ConversationID: conv.ID,
		UserMessageID:  userMsg.ID,
		MessageID:      assistantMsg.ID,
		Response:       t.reply,
		AgentID:        t.replyAgent,
		AgentName:      agent.MustLookup(t.replyAgent).Name,
		Created:        created,
		Fallback:       t.fallback,
		Decision:       t.decision,
	}, nil
}

func (s *Service) runRouter(ctx context.Context, t *turn, req agent.Request) {
	req.AgentID = agent.Router
	res := s.agents.Invoke(ctx, &req)
	if !res.Success {
		t.reply = agent.FallbackText(agent.Router)
		t.replyAgent = agent.Router
		t.fallback = true
		t.state = answered
		return
	}

	decision, err := s.classifier.Classify(ctx, res.Text)
	if err != nil {
		s.logger.Warn("routing classification failed, keeping router reply",
			"conversation_id", req.ConversationID,
			"error", err)
		decision = routing.Decision{Kind: routing.Answer}
	}
	t.decision = &decision

	if decision.ShouldRoute() {
		s.logger.Debug("router handed off",
			"conversation_id", req.ConversationID,
			"target", decision.Target,
			"confidence", decision.Confidence,
			"rule", decision.Rule)
		t.routerText = res.Text
		t.target = decision.Target
		t.state = awaitingSpecialist
		return
	}

	t.reply = res.Text
	t.replyAgent = agent.Router
	t.state = answered
}

func (s *Service) runSpecialist(ctx context.Context, t *turn, req agent.Request) {
	req.AgentID = t.target
	req.Assessment = s.assessmentFor(ctx, req.OwnerID, t.target)

	res := s.agents.Invoke(ctx, &req)
	t.state = answered
	switch {
	case res.Success:
		t.reply = res.Text
		t.replyAgent = t.target
	case t.routerText != "":
		// Hand-off failed: the router's own reply stands.
		t.reply = t.routerText
		t.replyAgent = agent.Router
		t.fallback = true
	default:
		t.reply = agent.FallbackText(t.target)
		t.replyAgent = t.target
		t.fallback = true
	}
}

// assessmentFor returns the caller's latest assessment summary for the
// specialist's domain, or "" if there is none or it cannot be read.
func (s *Service) assessmentFor(ctx context.Context, ownerID string, id agent.ID) string {
	profile, ok := agent.Lookup(id)
	if !ok || profile.Domain == "" {
		return ""
	}
	a, err := s.store.GetLatestAssessment(ctx, ownerID, profile.Domain)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to load assessment",
				"owner_id", ownerID,
				"domain", profile.Domain,
				"error", err)
		}
		return ""
	}
	return a.Summary
}

// resolveConversation loads an owned conversation or creates a new one.
func (s *Service) resolveConversation(ctx context.Context, ownerID string, id *string) (*store.Conversation, bool, error) {
	if id != nil {
		conv, err := s.store.GetConversation(ctx, ownerID, *id)
		if err != nil {
			return nil, false, storeErr("load conversation", err)
		}
		return conv, false, nil
	}

	now := s.now()
	conv := &store.Conversation{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Title:          DefaultTitle,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, storeErr("create conversation", err)
	}
	s.logger.Debug("conversation created", "conversation_id", conv.ID, "owner_id", ownerID)
	return conv, true, nil
}
