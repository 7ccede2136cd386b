// ABOUTME: Anthropic Messages API backend for agent invocations
// ABOUTME: Builds system prompts from profiles and maps context turns to alternating messages

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

// MessagesClient is the subset of the Anthropic client used by the backend.
type MessagesClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

type sdkMessages struct {
	messages *anthropic.MessageService
}

func (s *sdkMessages) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return s.messages.New(ctx, params)
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// AnthropicBackend answers as any profile using the Anthropic Messages API.
type AnthropicBackend struct {
	client    MessagesClient
	model     string
	maxTokens int64
}

// NewAnthropicBackend creates a backend with a real SDK client.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return NewAnthropicBackendWithClient(&sdkMessages{messages: &client.Messages}, cfg), nil
}

// NewAnthropicBackendWithClient creates a backend with a custom client (for testing).
func NewAnthropicBackendWithClient(client MessagesClient, cfg AnthropicConfig) *AnthropicBackend {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicBackend{
		client:    client,
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Complete sends the request to the Messages API and returns the joined text blocks.
func (b *AnthropicBackend) Complete(ctx context.Context, profile Profile, req *Request) (string, error) {
	resp, err := b.client.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: b.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(profile, req)},
		},
		Messages: buildMessages(req),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func systemPrompt(profile Profile, req *Request) string {
	if !profile.IsSpecialist() || req.Assessment == "" {
		return profile.SystemPrompt
	}
	return profile.SystemPrompt + "\n\nThe person's most recent self-assessment for this area: " + req.Assessment
}

type plainTurn struct {
	user    bool
	content string
}

// collapseTurns merges consecutive same-role turns, drops leading assistant
// turns and appends the new user message so roles strictly alternate
// starting with the user.
func collapseTurns(req *Request) []plainTurn {
	turns := make([]plainTurn, 0, len(req.Context)+1)
	add := func(user bool, content string) {
		if content == "" {
			return
		}
		if len(turns) == 0 && !user {
			return
		}
		if n := len(turns); n > 0 && turns[n-1].user == user {
			turns[n-1].content += "\n\n" + content
			return
		}
		turns = append(turns, plainTurn{user: user, content: content})
	}
	for _, t := range req.Context {
		add(t.Role == "user", t.Content)
	}
	add(true, req.Message)
	return turns
}

func buildMessages(req *Request) []anthropic.MessageParam {
	turns := collapseTurns(req)
	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.user {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.content)))
		} else {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.content)))
		}
	}
	return msgs
}

var _ Backend = (*AnthropicBackend)(nil)
