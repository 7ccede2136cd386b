// ABOUTME: Deterministic offline backend for development and tests
// ABOUTME: The router hands off on domain keywords; specialists reply with a canned greeting

package agent

import (
	"context"
	"fmt"
	"strings"
)

// ScriptedBackend answers without any network access.
type ScriptedBackend struct{}

// NewScriptedBackend creates a ScriptedBackend.
func NewScriptedBackend() *ScriptedBackend {
	return &ScriptedBackend{}
}

// Complete returns a deterministic reply for the profile.
func (b *ScriptedBackend) Complete(ctx context.Context, profile Profile, req *Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !profile.IsSpecialist() {
		if target, ok := matchKeywords(req.Message); ok {
			return fmt.Sprintf("I'm connecting you with our %s %s specialist, who can help with that.",
				target.Name, target.Emoji), nil
		}
		return fmt.Sprintf("Hello, I'm the %s %s. Tell me a little more about what you need and I'll help you find the right mentor.",
			profile.Name, profile.Emoji), nil
	}

	reply := fmt.Sprintf("Hi, I'm the %s %s. Let's work through this together.", profile.Name, profile.Emoji)
	if req.Assessment != "" {
		reply += " I've taken your latest self-assessment into account."
	}
	return reply, nil
}

// matchKeywords returns the first specialist (digital, finance, health)
// whose keywords appear in text.
func matchKeywords(text string) (Profile, bool) {
	lower := strings.ToLower(text)
	for _, p := range Specialists() {
		for _, kw := range p.Keywords {
			if strings.Contains(lower, kw) {
				return p, true
			}
		}
	}
	return Profile{}, false
}

var _ Backend = (*ScriptedBackend)(nil)
