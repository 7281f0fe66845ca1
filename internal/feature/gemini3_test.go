package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/claude-code-open/internal/config"
	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

func TestIsGemini3Model(t *testing.T) {
	assert.True(t, IsGemini3Model("gemini-3-pro"))
	assert.True(t, IsGemini3Model("GEMINI-3-FLASH"))
	assert.False(t, IsGemini3Model("gemini-2.5-pro"))
}

func TestIsGemini3Flash(t *testing.T) {
	assert.True(t, IsGemini3Flash("gemini-3-flash"))
	assert.False(t, IsGemini3Flash("gemini-3-pro"))
}

func TestApplyGemini3Quirks_NonGemini3StripsSignature(t *testing.T) {
	req := &uif.Request{
		Messages: []uif.Message{{
			Role: uif.RoleAssistant,
			Content: []uif.Content{{
				Kind:      uif.ContentToolUse,
				ToolUseID: "call_1__thought__abc123",
			}},
		}},
	}
	ctx := Context{Mapped: config.ModelMapping{Mapped: "gpt-test"}}

	out, err := ApplyGemini3Quirks(req, ctx)
	require.NoError(t, err)
	assert.Equal(t, "call_1", out.Messages[0].Content[0].ToolUseID)
}

func TestApplyGemini3Quirks_Gemini3SynthesizesDummySignature(t *testing.T) {
	req := &uif.Request{
		ReasoningEffort: "high",
		Messages: []uif.Message{{
			Role: uif.RoleAssistant,
			Content: []uif.Content{{
				Kind:      uif.ContentToolUse,
				ToolUseID: "call_1",
			}},
		}},
	}
	ctx := Context{Mapped: config.ModelMapping{Mapped: "gemini-3-pro"}}

	out, err := ApplyGemini3Quirks(req, ctx)
	require.NoError(t, err)
	assert.Contains(t, out.Messages[0].Content[0].ToolUseID, "call_1"+thoughtSignatureSeparator)
	assert.Contains(t, out.Messages[0].Content[0].ToolUseID, dummyThoughtSignature)
	assert.Equal(t, "high", out.Extensions["thinking_level"])
}

func TestApplyGemini3Quirks_Gemini3FlashMediumMapsDifferently(t *testing.T) {
	req := &uif.Request{ReasoningEffort: "medium"}
	ctx := Context{Mapped: config.ModelMapping{Mapped: "gemini-3-flash"}}

	out, err := ApplyGemini3Quirks(req, ctx)
	require.NoError(t, err)
	assert.Equal(t, "medium", out.Extensions["thinking_level"])

	ctxPro := Context{Mapped: config.ModelMapping{Mapped: "gemini-3-pro"}}
	out2, err := ApplyGemini3Quirks(&uif.Request{ReasoningEffort: "medium"}, ctxPro)
	require.NoError(t, err)
	assert.Equal(t, "high", out2.Extensions["thinking_level"])
}

func TestApplyGemini3Quirks_InjectsDefaultTemperatureWhenUnset(t *testing.T) {
	req := &uif.Request{}
	ctx := Context{Mapped: config.ModelMapping{Mapped: "gemini-3-pro"}}

	out, err := ApplyGemini3Quirks(req, ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Temperature)
	assert.Equal(t, 1.0, *out.Temperature)
}

func TestApplyGemini3Quirks_KeepsExplicitTemperature(t *testing.T) {
	explicit := 0.2
	req := &uif.Request{Temperature: &explicit}
	ctx := Context{Mapped: config.ModelMapping{Mapped: "gemini-3-pro"}}

	out, err := ApplyGemini3Quirks(req, ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Temperature)
	assert.Equal(t, 0.2, *out.Temperature)
}

func TestApplyGemini3Quirks_ExtractsRealSignatureFromProviderFields(t *testing.T) {
	req := &uif.Request{
		Messages: []uif.Message{{
			Role: uif.RoleAssistant,
			Content: []uif.Content{{
				Kind:           uif.ContentToolUse,
				ToolUseID:      "call_9",
				ProviderFields: map[string]any{"thought_signature": "real-sig"},
			}},
		}},
	}
	ctx := Context{Mapped: config.ModelMapping{Mapped: "gemini-3-pro"}}

	out, err := ApplyGemini3Quirks(req, ctx)
	require.NoError(t, err)
	assert.Equal(t, "call_9"+thoughtSignatureSeparator+"real-sig", out.Messages[0].Content[0].ToolUseID)
}
