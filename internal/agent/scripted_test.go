// ABOUTME: Tests for the scripted offline backend
// ABOUTME: Verifies router hand-off phrasing and specialist greetings

package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedBackend_RouterHandsOffOnKeyword(t *testing.T) {
	b := NewScriptedBackend()

	text, err := b.Complete(context.Background(), MustLookup(Router), &Request{Message: "How do I set up a BUDGET?"})
	require.NoError(t, err)
	assert.Contains(t, text, "I'm connecting you with our Finance Guide 💰")
}

func TestScriptedBackend_DigitalWinsTies(t *testing.T) {
	b := NewScriptedBackend()

	text, err := b.Complete(context.Background(), MustLookup(Router), &Request{Message: "email my bank"})
	require.NoError(t, err)
	assert.Contains(t, text, "Digital Mentor")
}

func TestScriptedBackend_RouterAnswersDirectly(t *testing.T) {
	b := NewScriptedBackend()

	text, err := b.Complete(context.Background(), MustLookup(Router), &Request{Message: "hello"})
	require.NoError(t, err)
	assert.NotContains(t, text, "connecting you")
	assert.Contains(t, text, "Mentor Router")
}

func TestScriptedBackend_Specialist(t *testing.T) {
	b := NewScriptedBackend()

	text, err := b.Complete(context.Background(), MustLookup(HealthCoach), &Request{Message: "hi", Assessment: "ok"})
	require.NoError(t, err)
	assert.Contains(t, text, "Health Coach")
	assert.Contains(t, text, "self-assessment")
}

func TestScriptedBackend_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScriptedBackend().Complete(ctx, MustLookup(Router), &Request{Message: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}
