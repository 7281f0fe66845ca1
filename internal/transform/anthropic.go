package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// AnthropicTransformer implements Transformer for the Anthropic-style
// messages wire protocol. GCP-Vertex backends reuse this transformer
// unchanged: the two are wire-compatible and differ only in transport.
type AnthropicTransformer struct{}

func NewAnthropicTransformer() *AnthropicTransformer { return &AnthropicTransformer{} }

// ---- wire shapes, matching Anthropic's /v1/messages body ----

type anMessagesRequest struct {
	Model         string          `json:"model"`
	Messages      []anMessage     `json:"messages"`
	System        json.RawMessage `json:"system,omitempty"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []anTool        `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
	Thinking      *anThinking     `json:"thinking,omitempty"`
}

type anThinking struct {
	Type         string `json:"type"` // "enabled" | "disabled"
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type anMessage struct {
	Role    string      `json:"role"`
	Content []anContent `json:"content"`
}

type anContent struct {
	Type         string          `json:"type"`
	Text         string          `json:"text,omitempty"`
	Source       *anImageSource  `json:"source,omitempty"`
	ID           string          `json:"id,omitempty"`         // tool_use
	Name         string          `json:"name,omitempty"`       // tool_use
	Input        json.RawMessage `json:"input,omitempty"`      // tool_use
	ToolUseID    string          `json:"tool_use_id,omitempty"` // tool_result
	Content      json.RawMessage `json:"content,omitempty"`    // tool_result (string or blocks)
	IsError      bool            `json:"is_error,omitempty"`
	Thinking     string          `json:"thinking,omitempty"`
	Signature    string          `json:"signature,omitempty"`
	Data         string          `json:"data,omitempty"` // redacted_thinking

	// ThoughtSignature and ExtraContent carry Gemini-3-via-Vertex's
	// structured thought-signature fields on tool_use blocks, which
	// ride alongside the plain Anthropic shape unrecognized by other
	// providers.
	ThoughtSignature string         `json:"thought_signature,omitempty"`
	ExtraContent     map[string]any `json:"extra_content,omitempty"`
}

// anThoughtSignatureSeparator matches the inline tool-call-id encoding
// used by the Gemini-3 feature quirks, so a signature captured here
// round-trips through the id on a later turn.
const anThoughtSignatureSeparator = "__thought__"

// anToolUseThoughtSignature recovers a Gemini-3 thought signature from
// a decoded tool_use block, checking the structured field first and
// falling back to the nested extra_content.google shape.
func anToolUseThoughtSignature(c anContent) (string, bool) {
	if c.ThoughtSignature != "" {
		return c.ThoughtSignature, true
	}
	if google, ok := c.ExtraContent["google"].(map[string]any); ok {
		if sig, ok := google["thought_signature"].(string); ok && sig != "" {
			return sig, true
		}
	}
	return "", false
}

type anImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anMessagesResponse struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Role       string      `json:"role"`
	Model      string      `json:"model"`
	Content    []anContent `json:"content"`
	StopReason *string     `json:"stop_reason,omitempty"`
	Usage      anUsage     `json:"usage"`
}

type anUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

var anStopToUIF = map[string]uif.StopReason{
	"end_turn":      uif.StopEndTurn,
	"max_tokens":    uif.StopMaxTokens,
	"stop_sequence": uif.StopSequence,
	"tool_use":      uif.StopToolUse,
}

var uifStopToAN = map[uif.StopReason]string{
	uif.StopEndTurn:       "end_turn",
	uif.StopMaxTokens:     "max_tokens",
	uif.StopSequence:      "stop_sequence",
	uif.StopToolUse:       "tool_use",
	uif.StopContentFilter: "end_turn",
	uif.StopOther:         "end_turn",
}

func (AnthropicTransformer) RequestOut(raw []byte) (*uif.Request, error) {
	var wire anMessagesRequest
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("anthropic: decode request: %w", err)
	}

	maxTokens := wire.MaxTokens
	req := &uif.Request{
		Model:         wire.Model,
		Temperature:   wire.Temperature,
		TopP:          wire.TopP,
		TopK:          wire.TopK,
		MaxTokens:     &maxTokens,
		StopSequences: wire.StopSequences,
		Stream:        wire.Stream,
	}

	if len(wire.System) > 0 {
		req.System = decodeANSystem(wire.System)
	}

	for _, m := range wire.Messages {
		req.Messages = append(req.Messages, decodeANMessage(m))
	}

	for _, t := range wire.Tools {
		req.Tools = append(req.Tools, uif.Tool{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}

	if wire.Thinking != nil {
		req.Extensions = map[string]any{"thinking": map[string]any{"type": wire.Thinking.Type, "budget_tokens": wire.Thinking.BudgetTokens}}
		if wire.Thinking.BudgetTokens > 0 {
			req.ReasoningBudget = &wire.Thinking.BudgetTokens
		}
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

func decodeANSystem(raw json.RawMessage) []uif.Content {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []uif.Content{{Kind: uif.ContentText, Text: asString}}
	}

	var blocks []anContent
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	out := make([]uif.Content, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			out = append(out, uif.Content{Kind: uif.ContentText, Text: b.Text})
		}
	}
	return out
}

func decodeANMessage(m anMessage) uif.Message {
	msg := uif.Message{Role: uif.Role(m.Role)}

	for _, c := range m.Content {
		switch c.Type {
		case "text":
			msg.Content = append(msg.Content, uif.Content{Kind: uif.ContentText, Text: c.Text})
		case "image":
			if c.Source != nil {
				ct := uif.Content{Kind: uif.ContentImage, MimeType: c.Source.MediaType}
				if c.Source.Type == "url" {
					ct.ImageURL = c.Source.URL
				} else {
					ct.ImageData = c.Source.Data
				}
				msg.Content = append(msg.Content, ct)
			}
		case "tool_use":
			block := uif.Content{
				Kind: uif.ContentToolUse, ToolUseID: c.ID, ToolName: c.Name, ToolArgsRaw: c.Input,
			}
			if sig, ok := anToolUseThoughtSignature(c); ok {
				block.ProviderFields = map[string]any{"thought_signature": sig}
				block.ToolUseID = block.ToolUseID + anThoughtSignatureSeparator + sig
			}
			msg.Content = append(msg.Content, block)
		case "tool_result":
			msg.Content = append(msg.Content, uif.Content{
				Kind: uif.ContentToolResult, ToolResultID: c.ToolUseID,
				ToolResultContent: decodeANToolResultContent(c.Content), ToolResultIsError: c.IsError,
			})
		case "thinking":
			msg.Content = append(msg.Content, uif.Content{Kind: uif.ContentThinking, ThinkingText: c.Thinking, Signature: c.Signature})
		case "redacted_thinking":
			msg.Content = append(msg.Content, uif.Content{Kind: uif.ContentRedactedThinking, RedactedData: []byte(c.Data)})
		}
	}

	return msg
}

func decodeANToolResultContent(raw json.RawMessage) []uif.Content {
	if len(raw) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []uif.Content{{Kind: uif.ContentText, Text: asString}}
	}
	var blocks []anContent
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	out := make([]uif.Content, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			out = append(out, uif.Content{Kind: uif.ContentText, Text: b.Text})
		}
	}
	return out
}

func (AnthropicTransformer) RequestIn(req *uif.Request) ([]byte, error) {
	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	wire := anMessagesRequest{
		Model:         req.Model,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.StopSequences,
		Stream:        req.Stream,
	}

	if len(req.System) > 0 {
		b, _ := json.Marshal(encodeANContent(req.System))
		wire.System = b
	}

	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, anMessage{Role: string(m.Role), Content: encodeANContent(m.Content)})
	}

	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, anTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}

	return json.Marshal(wire)
}

func encodeANContent(blocks []uif.Content) []anContent {
	out := make([]anContent, 0, len(blocks))
	for _, c := range blocks {
		switch c.Kind {
		case uif.ContentText:
			out = append(out, anContent{Type: "text", Text: c.Text})
		case uif.ContentImage:
			src := &anImageSource{MediaType: c.MimeType}
			if c.ImageURL != "" {
				src.Type = "url"
				src.URL = c.ImageURL
			} else {
				src.Type = "base64"
				src.Data = c.ImageData
			}
			out = append(out, anContent{Type: "image", Source: src})
		case uif.ContentToolUse:
			input := c.ToolArgsRaw
			if len(input) == 0 {
				input = []byte("{}")
			}
			out = append(out, anContent{Type: "tool_use", ID: c.ToolUseID, Name: c.ToolName, Input: input})
		case uif.ContentToolResult:
			contentJSON, _ := json.Marshal(encodeANContent(c.ToolResultContent))
			out = append(out, anContent{Type: "tool_result", ToolUseID: c.ToolResultID, Content: contentJSON, IsError: c.ToolResultIsError})
		case uif.ContentThinking:
			out = append(out, anContent{Type: "thinking", Thinking: c.ThinkingText, Signature: c.Signature})
		case uif.ContentRedactedThinking:
			out = append(out, anContent{Type: "redacted_thinking", Data: string(c.RedactedData)})
		}
	}
	return out
}

func (AnthropicTransformer) ResponseIn(raw []byte, requestedModel string) (*uif.Response, error) {
	var wire anMessagesResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	stop := uif.StopEndTurn
	if wire.StopReason != nil {
		if mapped, ok := anStopToUIF[*wire.StopReason]; ok {
			stop = mapped
		}
	}

	return &uif.Response{
		ID:        wire.ID,
		CreatedAt: time.Now().Unix(),
		Model:     requestedModel,
		Choices: []uif.Choice{{
			Index:      0,
			Message:    uif.Message{Role: uif.RoleAssistant, Content: decodeANMessage(anMessage{Role: "assistant", Content: wire.Content}).Content},
			StopReason: stop,
		}},
		Usage: uif.Usage{
			InputTokens:              wire.Usage.InputTokens,
			OutputTokens:             wire.Usage.OutputTokens,
			CacheReadInputTokens:     nonZeroPtr(wire.Usage.CacheReadInputTokens),
			CacheCreationInputTokens: nonZeroPtr(wire.Usage.CacheCreationInputTokens),
		},
	}, nil
}

func nonZeroPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func (AnthropicTransformer) ResponseOut(resp *uif.Response) ([]byte, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anthropic: response has no choices")
	}
	choice := resp.Choices[0]
	finish := uifStopToAN[choice.StopReason]

	wire := anMessagesResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      resp.Model,
		Content:    encodeANContent(choice.Message.Content),
		StopReason: &finish,
		Usage: anUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	if resp.Usage.CacheReadInputTokens != nil {
		wire.Usage.CacheReadInputTokens = *resp.Usage.CacheReadInputTokens
	}
	if resp.Usage.CacheCreationInputTokens != nil {
		wire.Usage.CacheCreationInputTokens = *resp.Usage.CacheCreationInputTokens
	}

	return json.Marshal(wire)
}

// ---- streaming ----

type anStreamEvent struct {
	Type         string          `json:"type"`
	Message      *anMessagesResponse `json:"message,omitempty"`
	Index        *int            `json:"index,omitempty"`
	ContentBlock *anContent      `json:"content_block,omitempty"`
	Delta        *anDelta        `json:"delta,omitempty"`
	Usage        *anUsage        `json:"usage,omitempty"`
}

type anDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

func (AnthropicTransformer) StreamChunkIn(raw []byte) ([]uif.StreamChunk, error) {
	var ev anStreamEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("anthropic: decode stream event: %w", err)
	}

	switch ev.Type {
	case "message_start":
		if ev.Message == nil {
			return nil, nil
		}
		return []uif.StreamChunk{{Kind: uif.ChunkStart, ID: ev.Message.ID, Model: ev.Message.Model}}, nil

	case "content_block_start":
		if ev.ContentBlock == nil || ev.Index == nil {
			return nil, nil
		}
		if ev.ContentBlock.Type == "tool_use" {
			toolCallID := ev.ContentBlock.ID
			if sig, ok := anToolUseThoughtSignature(*ev.ContentBlock); ok {
				toolCallID += anThoughtSignatureSeparator + sig
			}
			return []uif.StreamChunk{{Kind: uif.ChunkToolCallDelta, Index: *ev.Index, ToolCallID: toolCallID, ToolName: ev.ContentBlock.Name}}, nil
		}
		return nil, nil

	case "content_block_delta":
		if ev.Delta == nil || ev.Index == nil {
			return nil, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return []uif.StreamChunk{{Kind: uif.ChunkContentDelta, Index: *ev.Index, Text: ev.Delta.Text}}, nil
		case "input_json_delta":
			return []uif.StreamChunk{{Kind: uif.ChunkToolCallDelta, Index: *ev.Index, ArgumentsFragment: ev.Delta.PartialJSON}}, nil
		case "thinking_delta":
			return []uif.StreamChunk{{Kind: uif.ChunkThinkingDelta, Index: *ev.Index, ThinkingText: ev.Delta.Thinking}}, nil
		case "signature_delta":
			return []uif.StreamChunk{{Kind: uif.ChunkThinkingDelta, Index: *ev.Index, Signature: ev.Delta.Signature}}, nil
		}
		return nil, nil

	case "content_block_stop":
		return nil, nil

	case "message_delta":
		var out []uif.StreamChunk
		if ev.Usage != nil {
			out = append(out, uif.StreamChunk{Kind: uif.ChunkUsageDelta, Usage: uif.Usage{InputTokens: ev.Usage.InputTokens, OutputTokens: ev.Usage.OutputTokens}})
		}
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			stop := uif.StopEndTurn
			if mapped, ok := anStopToUIF[ev.Delta.StopReason]; ok {
				stop = mapped
			}
			out = append(out, uif.StreamChunk{Kind: uif.ChunkStop, Index: 0, StopReason: stop})
		}
		return out, nil

	case "message_stop":
		return []uif.StreamChunk{{Kind: uif.ChunkDone}}, nil

	default:
		return nil, nil
	}
}

func (AnthropicTransformer) StreamChunkOut(chunk uif.StreamChunk, state *StreamState) (string, error) {
	switch chunk.Kind {
	case uif.ChunkStart:
		if state.StartSent {
			return "", nil
		}
		state.StartSent = true
		if state.MessageID == "" {
			state.MessageID = "msg_" + uuid.NewString()
		}
		return anSSE("message_start", anStreamEvent{
			Type: "message_start",
			Message: &anMessagesResponse{ID: state.MessageID, Type: "message", Role: "assistant", Model: state.Model, Content: []anContent{}},
		})

	case uif.ChunkContentDelta:
		idx := chunk.Index
		var events bytes.Buffer
		block := state.blockFor(idx, -1, "text")
		if !block.StartSent {
			block.StartSent = true
			s, err := anSSE("content_block_start", anStreamEvent{Type: "content_block_start", Index: &idx, ContentBlock: &anContent{Type: "text", Text: ""}})
			if err != nil {
				return "", err
			}
			events.WriteString(s)
		}
		s, err := anSSE("content_block_delta", anStreamEvent{Type: "content_block_delta", Index: &idx, Delta: &anDelta{Type: "text_delta", Text: chunk.Text}})
		if err != nil {
			return "", err
		}
		events.WriteString(s)
		return events.String(), nil

	case uif.ChunkToolCallDelta:
		idx := chunk.Index
		var events bytes.Buffer
		block := state.blockFor(idx, idx, "tool_use")
		if !block.StartSent {
			block.StartSent = true
			block.ToolCallID = chunk.ToolCallID
			block.ToolName = chunk.ToolName
			s, err := anSSE("content_block_start", anStreamEvent{Type: "content_block_start", Index: &idx, ContentBlock: &anContent{Type: "tool_use", ID: chunk.ToolCallID, Name: chunk.ToolName}})
			if err != nil {
				return "", err
			}
			events.WriteString(s)
		}
		if chunk.ArgumentsFragment != "" {
			s, err := anSSE("content_block_delta", anStreamEvent{Type: "content_block_delta", Index: &idx, Delta: &anDelta{Type: "input_json_delta", PartialJSON: chunk.ArgumentsFragment}})
			if err != nil {
				return "", err
			}
			events.WriteString(s)
		}
		return events.String(), nil

	case uif.ChunkStop:
		idx := chunk.Index
		stopEvt, err := anSSE("content_block_stop", anStreamEvent{Type: "content_block_stop", Index: &idx})
		if err != nil {
			return "", err
		}
		finish := uifStopToAN[chunk.StopReason]
		deltaEvt, err := anSSE("message_delta", anStreamEvent{Type: "message_delta", Delta: &anDelta{StopReason: finish}})
		if err != nil {
			return "", err
		}
		return stopEvt + deltaEvt, nil

	case uif.ChunkUsageDelta:
		if state.UsageSent {
			return "", nil
		}
		state.UsageSent = true
		return anSSE("message_delta", anStreamEvent{
			Type: "message_delta",
			Usage: &anUsage{InputTokens: chunk.Usage.InputTokens, OutputTokens: chunk.Usage.OutputTokens},
		})

	case uif.ChunkDone:
		if state.DoneSent {
			return "", nil
		}
		state.DoneSent = true
		return anSSE("message_stop", anStreamEvent{Type: "message_stop"})

	default:
		return "", nil
	}
}

func anSSE(eventName string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return "event: " + eventName + "\ndata: " + string(b) + "\n\n", nil
}
