package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

func TestResponseAPITransformer_RequestRoundTrip(t *testing.T) {
	tf := NewResponseAPITransformer()

	raw := []byte(`{
		"model": "gpt-test",
		"instructions": "be terse",
		"input": [{"type": "message", "role": "user", "content": [{"type": "input_text", "text": "hi"}]}]
	}`)

	req, err := tf.RequestOut(raw)
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", req.Model)
	require.Len(t, req.System, 1)
	assert.Equal(t, "be terse", req.System[0].Text)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "hi", req.Messages[0].Content[0].Text)

	out, err := tf.RequestIn(req)
	require.NoError(t, err)

	var wire raRequest
	require.NoError(t, json.Unmarshal(out, &wire))
	assert.Equal(t, "gpt-test", wire.Model)
	assert.Equal(t, "be terse", wire.Instructions)
	require.Len(t, wire.Input, 1)
}

func TestResponseAPITransformer_RequestOut_FunctionCallOutput(t *testing.T) {
	tf := NewResponseAPITransformer()

	raw := []byte(`{
		"model": "gpt-test",
		"input": [{"type": "function_call_output", "call_id": "call_1", "output": "42"}]
	}`)

	req, err := tf.RequestOut(raw)
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, uif.RoleTool, req.Messages[0].Role)
	assert.Equal(t, "call_1", req.Messages[0].Content[0].ToolResultID)
}

func TestResponseAPITransformer_ResponseRoundTrip(t *testing.T) {
	tf := NewResponseAPITransformer()

	resp := &uif.Response{
		ID:    "resp_1",
		Model: "gpt-test",
		Usage: uif.Usage{InputTokens: 10, OutputTokens: 5},
		Choices: []uif.Choice{{
			Index:      0,
			StopReason: uif.StopEndTurn,
			Message: uif.Message{
				Role:    uif.RoleAssistant,
				Content: []uif.Content{{Kind: uif.ContentText, Text: "hello"}},
			},
		}},
	}

	raw, err := tf.ResponseOut(resp)
	require.NoError(t, err)

	parsed, err := tf.ResponseIn(raw, "gpt-test")
	require.NoError(t, err)
	assert.Equal(t, "hello", parsed.Choices[0].Message.Content[0].Text)
	assert.Equal(t, 10, parsed.Usage.InputTokens)
}

func TestResponseAPITransformer_StreamChunkIn_Created(t *testing.T) {
	tf := NewResponseAPITransformer()
	chunks, err := tf.StreamChunkIn([]byte(`{"type":"response.created","response":{"id":"resp_1","model":"gpt-test"}}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, uif.ChunkStart, chunks[0].Kind)
}

func TestResponseAPITransformer_StreamChunkIn_Completed(t *testing.T) {
	tf := NewResponseAPITransformer()
	chunks, err := tf.StreamChunkIn([]byte(`{"type":"response.completed"}`))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, uif.ChunkStop, chunks[0].Kind)
	assert.Equal(t, uif.ChunkDone, chunks[1].Kind)
}

func TestResponseAPITransformer_StreamChunkOut_NeverLeaksUpstreamModel(t *testing.T) {
	tf := NewResponseAPITransformer()
	state := NewStreamState()
	state.Model = "client-requested-model"

	out, err := tf.StreamChunkOut(uif.StreamChunk{Kind: uif.ChunkStart, Model: "vertex-internal-mapped-model"}, state)
	require.NoError(t, err)
	assert.Contains(t, out, "client-requested-model")
	assert.NotContains(t, out, "vertex-internal-mapped-model")
	assert.Equal(t, "client-requested-model", state.Model)
}

func TestResponseAPITransformer_StreamChunkOut_DoneOnlyOnce(t *testing.T) {
	tf := NewResponseAPITransformer()
	state := NewStreamState()

	first, err := tf.StreamChunkOut(uif.StreamChunk{Kind: uif.ChunkDone}, state)
	require.NoError(t, err)
	assert.Contains(t, first, "response.completed")

	second, err := tf.StreamChunkOut(uif.StreamChunk{Kind: uif.ChunkDone}, state)
	require.NoError(t, err)
	assert.Empty(t, second)
}
