package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

func TestAnthropicTransformer_RequestRoundTrip(t *testing.T) {
	tf := NewAnthropicTransformer()

	raw := []byte(`{
		"model": "claude-test",
		"max_tokens": 512,
		"system": "be terse",
		"messages": [{"role": "user", "content": [{"type": "text", "text": "hi"}]}]
	}`)

	req, err := tf.RequestOut(raw)
	require.NoError(t, err)
	assert.Equal(t, "claude-test", req.Model)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 512, *req.MaxTokens)
	require.Len(t, req.System, 1)
	assert.Equal(t, "be terse", req.System[0].Text)

	out, err := tf.RequestIn(req)
	require.NoError(t, err)

	var wire anMessagesRequest
	require.NoError(t, json.Unmarshal(out, &wire))
	assert.Equal(t, "claude-test", wire.Model)
	assert.Equal(t, 512, wire.MaxTokens)
}

func TestAnthropicTransformer_RequestIn_DefaultsMaxTokens(t *testing.T) {
	tf := NewAnthropicTransformer()
	out, err := tf.RequestIn(&uif.Request{Model: "claude-test"})
	require.NoError(t, err)

	var wire anMessagesRequest
	require.NoError(t, json.Unmarshal(out, &wire))
	assert.Equal(t, 4096, wire.MaxTokens)
}

func TestAnthropicTransformer_ResponseRoundTrip(t *testing.T) {
	tf := NewAnthropicTransformer()

	resp := &uif.Response{
		ID:    "msg_1",
		Model: "claude-test",
		Usage: uif.Usage{InputTokens: 10, OutputTokens: 5},
		Choices: []uif.Choice{{
			Index:      0,
			StopReason: uif.StopToolUse,
			Message: uif.Message{
				Role: uif.RoleAssistant,
				Content: []uif.Content{
					{Kind: uif.ContentToolUse, ToolUseID: "call_1", ToolName: "lookup", ToolArgsRaw: []byte(`{"x":1}`)},
				},
			},
		}},
	}

	raw, err := tf.ResponseOut(resp)
	require.NoError(t, err)

	parsed, err := tf.ResponseIn(raw, "claude-test")
	require.NoError(t, err)
	assert.Equal(t, uif.StopToolUse, parsed.Choices[0].StopReason)
	require.Len(t, parsed.Choices[0].Message.Content, 1)
	assert.Equal(t, "lookup", parsed.Choices[0].Message.Content[0].ToolName)
}

func TestAnthropicTransformer_ResponseIn_EncodesThoughtSignatureIntoToolUseID(t *testing.T) {
	tf := NewAnthropicTransformer()

	raw := []byte(`{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "gemini-3-pro",
		"content": [{"type": "tool_use", "id": "call_1", "name": "lookup", "input": {}, "thought_signature": "real-sig"}],
		"usage": {"input_tokens": 1, "output_tokens": 1}
	}`)

	parsed, err := tf.ResponseIn(raw, "gemini-3-pro")
	require.NoError(t, err)
	require.Len(t, parsed.Choices[0].Message.Content, 1)
	block := parsed.Choices[0].Message.Content[0]
	assert.Equal(t, "call_1"+anThoughtSignatureSeparator+"real-sig", block.ToolUseID)
	assert.Equal(t, "real-sig", block.ProviderFields["thought_signature"])
}

func TestAnthropicTransformer_StreamChunkIn_MessageStop(t *testing.T) {
	tf := NewAnthropicTransformer()
	chunks, err := tf.StreamChunkIn([]byte(`{"type":"message_stop"}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, uif.ChunkDone, chunks[0].Kind)
}

func TestAnthropicTransformer_StreamChunkIn_TextDelta(t *testing.T) {
	tf := NewAnthropicTransformer()
	chunks, err := tf.StreamChunkIn([]byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, uif.ChunkContentDelta, chunks[0].Kind)
	assert.Equal(t, "hi", chunks[0].Text)
}

func TestAnthropicTransformer_StreamChunkIn_ContentBlockStartEncodesThoughtSignature(t *testing.T) {
	tf := NewAnthropicTransformer()
	chunks, err := tf.StreamChunkIn([]byte(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"call_2","name":"lookup","thought_signature":"sig-xyz"}}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "call_2"+anThoughtSignatureSeparator+"sig-xyz", chunks[0].ToolCallID)
}

func TestAnthropicTransformer_StreamChunkOut_StartOnlyOnce(t *testing.T) {
	tf := NewAnthropicTransformer()
	state := NewStreamState()

	first, err := tf.StreamChunkOut(uif.StreamChunk{Kind: uif.ChunkStart, Model: "m"}, state)
	require.NoError(t, err)
	assert.Contains(t, first, "message_start")

	second, err := tf.StreamChunkOut(uif.StreamChunk{Kind: uif.ChunkStart, Model: "m"}, state)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestAnthropicTransformer_StreamChunkOut_NeverLeaksUpstreamModel(t *testing.T) {
	tf := NewAnthropicTransformer()
	state := NewStreamState()
	state.Model = "client-requested-model"

	out, err := tf.StreamChunkOut(uif.StreamChunk{Kind: uif.ChunkStart, Model: "vertex-internal-mapped-model"}, state)
	require.NoError(t, err)
	assert.Contains(t, out, "client-requested-model")
	assert.NotContains(t, out, "vertex-internal-mapped-model")
	assert.Equal(t, "client-requested-model", state.Model)
}
