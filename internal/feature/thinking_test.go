package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/claude-code-open/internal/config"
	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

func TestApplyThinkingPolicy_SetsDirectiveForCapableProvider(t *testing.T) {
	budget := 2048
	req := &uif.Request{ReasoningBudget: &budget}
	ctx := Context{Provider: config.Provider{Type: "anthropic"}}

	out, err := ApplyThinkingPolicy(req, ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Extensions)
	thinking, ok := out.Extensions["thinking"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "enabled", thinking["type"])
	assert.Equal(t, 2048, thinking["budget_tokens"])
}

func TestApplyThinkingPolicy_DropsForIncapableProvider(t *testing.T) {
	budget := 2048
	req := &uif.Request{
		ReasoningBudget: &budget,
		Extensions:      map[string]any{"thinking": map[string]any{"type": "enabled"}},
	}
	ctx := Context{Provider: config.Provider{Type: "openai"}}

	out, err := ApplyThinkingPolicy(req, ctx)
	require.NoError(t, err)
	_, has := out.Extensions["thinking"]
	assert.False(t, has)
}

func TestApplyThinkingPolicy_NoBudgetIsNoop(t *testing.T) {
	req := &uif.Request{}
	ctx := Context{Provider: config.Provider{Type: "anthropic"}}

	out, err := ApplyThinkingPolicy(req, ctx)
	require.NoError(t, err)
	assert.Nil(t, out.Extensions)
}
