// ABOUTME: Routing decisions inferred from the router agent's own reply text
// ABOUTME: Classifier interface with a deterministic case-insensitive pattern strategy

package routing

import (
	"context"
	"strings"

	"github.com/2389/mentor-gateway/internal/agent"
)

// Kind discriminates routing decisions.
type Kind int

const (
	// Answer means the router's reply stands.
	Answer Kind = iota
	// Handoff means a specialist should answer instead.
	Handoff
)

func (k Kind) String() string {
	switch k {
	case Handoff:
		return "handoff"
	default:
		return "answer"
	}
}

// Decision is the outcome of classifying a router reply.
type Decision struct {
	Kind       Kind
	Target     agent.ID // set only for Handoff
	Confidence float64
	Rule       string
}

// ShouldRoute reports whether the decision is a hand-off.
func (d Decision) ShouldRoute() bool {
	return d.Kind == Handoff
}

// Classifier decides whether a router reply hands the turn to a specialist.
type Classifier interface {
	Classify(ctx context.Context, reply string) (Decision, error)
}

// Confidence levels assigned by PatternClassifier.
const (
	ExplicitConfidence = 0.9
	TopicalConfidence  = 0.7
	AnswerConfidence   = 0.9
)

var (
	handoffPhrases   = []string{"connecting you with our", "i'm connecting you"}
	indicatorPhrases = []string{"specialist", "expert"}
)

// PatternClassifier matches fixed phrases and keywords. Rules are evaluated
// in priority order and specialists in digital, finance, health order; the
// first match wins.
type PatternClassifier struct {
	specialists []agent.Profile
}

// NewPatternClassifier creates a PatternClassifier over the known specialists.
func NewPatternClassifier() *PatternClassifier {
	return &PatternClassifier{specialists: agent.Specialists()}
}

// Classify never returns an error; the signature allows model-backed strategies.
func (c *PatternClassifier) Classify(ctx context.Context, reply string) (Decision, error) {
	return c.Decide(reply), nil
}

// Decide is the pure classification function.
func (c *PatternClassifier) Decide(reply string) Decision {
	text := strings.ToLower(reply)

	if containsAny(text, handoffPhrases) {
		for _, p := range c.specialists {
			if strings.Contains(text, strings.ToLower(p.Name)) || strings.Contains(text, p.Emoji) {
				return Decision{Kind: Handoff, Target: p.ID, Confidence: ExplicitConfidence, Rule: "explicit-handoff"}
			}
		}
	}

	if containsAny(text, indicatorPhrases) {
		for _, p := range c.specialists {
			if containsAny(text, p.Keywords) {
				return Decision{Kind: Handoff, Target: p.ID, Confidence: TopicalConfidence, Rule: "topical-handoff"}
			}
		}
	}

	return Decision{Kind: Answer, Confidence: AnswerConfidence, Rule: "router-answer"}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

var _ Classifier = (*PatternClassifier)(nil)
