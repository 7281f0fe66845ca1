package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// OpenAITransformer implements Transformer for the OpenAI-style
// chat/completions wire protocol, both client-facing and provider-facing.
type OpenAITransformer struct{}

func NewOpenAITransformer() *OpenAITransformer { return &OpenAITransformer{} }

// ---- wire shapes, matching OpenAI's chat/completions body ----

type oaRequest struct {
	Model            string          `json:"model"`
	Messages         []oaMessage     `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
	Tools            []oaTool        `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	ReasoningEffort  *string         `json:"reasoning_effort,omitempty"`
}

type oaMessage struct {
	Role             string          `json:"role"`
	Content          json.RawMessage `json:"content,omitempty"`
	Name             *string         `json:"name,omitempty"`
	ToolCalls        []oaToolCall    `json:"tool_calls,omitempty"`
	ToolCallID       *string         `json:"tool_call_id,omitempty"`
	ReasoningContent *string         `json:"reasoning_content,omitempty"`
}

type oaContentBlock struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *oaImageURL   `json:"image_url,omitempty"`
}

type oaImageURL struct {
	URL string `json:"url"`
}

type oaTool struct {
	Type     string       `json:"type"`
	Function oaToolFunDef `json:"function"`
}

type oaToolFunDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

type oaToolCall struct {
	Index    *int       `json:"index,omitempty"`
	ID       string     `json:"id,omitempty"`
	Type     string     `json:"type,omitempty"`
	Function oaFunction `json:"function"`
}

type oaFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type oaResponse struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Created int64       `json:"created"`
	Model   string      `json:"model"`
	Choices []oaChoice  `json:"choices"`
	Usage   *oaUsage    `json:"usage,omitempty"`
}

type oaChoice struct {
	Index        int        `json:"index"`
	Message      *oaMessage `json:"message,omitempty"`
	Delta        *oaMessage `json:"delta,omitempty"`
	FinishReason *string    `json:"finish_reason,omitempty"`
}

type oaUsage struct {
	PromptTokens            int  `json:"prompt_tokens"`
	CompletionTokens         int  `json:"completion_tokens"`
	TotalTokens              int  `json:"total_tokens"`
	PromptTokensDetails      *oaPromptTokenDetails `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails  *oaCompletionTokenDetails `json:"completion_tokens_details,omitempty"`
}

type oaPromptTokenDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

type oaCompletionTokenDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

var oaStopToUIF = map[string]uif.StopReason{
	"stop":           uif.StopEndTurn,
	"length":         uif.StopMaxTokens,
	"tool_calls":     uif.StopToolUse,
	"content_filter": uif.StopContentFilter,
}

var uifStopToOA = map[uif.StopReason]string{
	uif.StopEndTurn:       "stop",
	uif.StopMaxTokens:     "length",
	uif.StopSequence:      "stop",
	uif.StopToolUse:       "tool_calls",
	uif.StopContentFilter: "content_filter",
	uif.StopOther:         "stop",
}

// RequestOut parses an OpenAI chat/completions body into UIF.
func (OpenAITransformer) RequestOut(raw []byte) (*uif.Request, error) {
	var wire oaRequest
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("openai: decode request: %w", err)
	}

	req := &uif.Request{
		Model:            wire.Model,
		Temperature:      wire.Temperature,
		TopP:             wire.TopP,
		MaxTokens:        wire.MaxTokens,
		StopSequences:    wire.Stop,
		Stream:           wire.Stream,
		PresencePenalty:  wire.PresencePenalty,
		FrequencyPenalty: wire.FrequencyPenalty,
	}

	if wire.ReasoningEffort != nil {
		req.ReasoningEffort = *wire.ReasoningEffort
	}

	for _, m := range wire.Messages {
		if m.Role == "system" {
			blocks, err := decodeOAContent(m.Content)
			if err != nil {
				return nil, err
			}
			req.System = append(req.System, blocks...)
			continue
		}

		msg, err := decodeOAMessage(m)
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range wire.Tools {
		req.Tools = append(req.Tools, uif.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
			Strict:      t.Function.Strict,
		})
	}

	if len(wire.ToolChoice) > 0 {
		req.ToolChoice = decodeOAToolChoice(wire.ToolChoice)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

func decodeOAToolChoice(raw json.RawMessage) *uif.ToolChoice {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch asString {
		case "none":
			return &uif.ToolChoice{Mode: uif.ToolChoiceNone}
		case "required":
			return &uif.ToolChoice{Mode: uif.ToolChoiceRequired}
		default:
			return &uif.ToolChoice{Mode: uif.ToolChoiceAuto}
		}
	}

	var named struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &named); err == nil && named.Function.Name != "" {
		return &uif.ToolChoice{Mode: uif.ToolChoiceNamed, Name: named.Function.Name}
	}

	return &uif.ToolChoice{Mode: uif.ToolChoiceAuto}
}

func decodeOAContent(raw json.RawMessage) ([]uif.Content, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil, nil
		}
		return []uif.Content{{Kind: uif.ContentText, Text: asString}}, nil
	}

	var blocks []oaContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("openai: decode content: %w", err)
	}

	out := make([]uif.Content, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, uif.Content{Kind: uif.ContentText, Text: b.Text})
		case "image_url":
			if b.ImageURL != nil {
				out = append(out, uif.Content{Kind: uif.ContentImage, ImageURL: b.ImageURL.URL})
			}
		}
	}

	return out, nil
}

func decodeOAMessage(m oaMessage) (uif.Message, error) {
	role := uif.Role(m.Role)

	if m.ToolCallID != nil {
		blocks, err := decodeOAContent(m.Content)
		if err != nil {
			return uif.Message{}, err
		}
		text := ""
		if len(blocks) > 0 {
			text = blocks[0].Text
		}
		return uif.Message{
			Role: uif.RoleTool,
			Content: []uif.Content{{
				Kind:              uif.ContentToolResult,
				ToolResultID:      *m.ToolCallID,
				ToolResultContent: []uif.Content{{Kind: uif.ContentText, Text: text}},
			}},
		}, nil
	}

	blocks, err := decodeOAContent(m.Content)
	if err != nil {
		return uif.Message{}, err
	}

	if m.ReasoningContent != nil && *m.ReasoningContent != "" {
		blocks = append([]uif.Content{{Kind: uif.ContentThinking, ThinkingText: *m.ReasoningContent}}, blocks...)
	}

	for _, tc := range m.ToolCalls {
		blocks = append(blocks, uif.Content{
			Kind:        uif.ContentToolUse,
			ToolUseID:   tc.ID,
			ToolName:    tc.Function.Name,
			ToolArgsRaw: []byte(tc.Function.Arguments),
		})
	}

	return uif.Message{Role: role, Content: blocks}, nil
}

// RequestIn serializes a UIF request into an OpenAI chat/completions body.
func (OpenAITransformer) RequestIn(req *uif.Request) ([]byte, error) {
	wire := oaRequest{
		Model:            req.Model,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		Stop:             req.StopSequences,
		Stream:           req.Stream,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}

	if req.ReasoningEffort != "" {
		wire.ReasoningEffort = &req.ReasoningEffort
	}

	if len(req.System) > 0 {
		wire.Messages = append(wire.Messages, oaMessage{
			Role:    "system",
			Content: encodeOAContent(req.System),
		})
	}

	for _, m := range req.Messages {
		msgs, err := encodeOAMessage(m)
		if err != nil {
			return nil, err
		}
		wire.Messages = append(wire.Messages, msgs...)
	}

	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, oaTool{
			Type: "function",
			Function: oaToolFunDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
				Strict:      t.Strict,
			},
		})
	}

	if req.ToolChoice != nil {
		wire.ToolChoice = encodeOAToolChoice(req.ToolChoice)
	}

	return json.Marshal(wire)
}

func encodeOAToolChoice(tc *uif.ToolChoice) json.RawMessage {
	switch tc.Mode {
	case uif.ToolChoiceNone:
		return json.RawMessage(`"none"`)
	case uif.ToolChoiceRequired:
		return json.RawMessage(`"required"`)
	case uif.ToolChoiceNamed:
		b, _ := json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": tc.Name},
		})
		return b
	default:
		return json.RawMessage(`"auto"`)
	}
}

func encodeOAContent(blocks []uif.Content) json.RawMessage {
	// A pure single text block serializes to a bare string, matching
	// what every OpenAI-speaking client/provider expects for plain text.
	if len(blocks) == 1 && blocks[0].Kind == uif.ContentText {
		b, _ := json.Marshal(blocks[0].Text)
		return b
	}

	wireBlocks := make([]oaContentBlock, 0, len(blocks))
	for _, c := range blocks {
		switch c.Kind {
		case uif.ContentText:
			wireBlocks = append(wireBlocks, oaContentBlock{Type: "text", Text: c.Text})
		case uif.ContentImage:
			wireBlocks = append(wireBlocks, oaContentBlock{Type: "image_url", ImageURL: &oaImageURL{URL: c.ImageURL}})
		}
	}

	b, _ := json.Marshal(wireBlocks)
	return b
}

func encodeOAMessage(m uif.Message) ([]oaMessage, error) {
	// A tool-result message maps to a standalone "tool" role message per
	// tool-result block, matching OpenAI's one-message-per-result shape.
	var toolResults []uif.Content
	var rest []uif.Content
	var toolUses []uif.Content
	var reasoning string

	for _, c := range m.Content {
		switch c.Kind {
		case uif.ContentToolResult:
			toolResults = append(toolResults, c)
		case uif.ContentToolUse:
			toolUses = append(toolUses, c)
		case uif.ContentThinking:
			reasoning += c.ThinkingText
		default:
			rest = append(rest, c)
		}
	}

	if len(toolResults) > 0 {
		out := make([]oaMessage, 0, len(toolResults))
		for _, tr := range toolResults {
			text := flattenText(tr.ToolResultContent)
			id := tr.ToolResultID
			out = append(out, oaMessage{Role: "tool", Content: mustJSON(text), ToolCallID: &id})
		}
		return out, nil
	}

	wire := oaMessage{Role: string(m.Role)}
	if len(rest) > 0 {
		wire.Content = encodeOAContent(rest)
	}
	if reasoning != "" {
		wire.ReasoningContent = &reasoning
	}
	for _, tu := range toolUses {
		wire.ToolCalls = append(wire.ToolCalls, oaToolCall{
			ID:   tu.ToolUseID,
			Type: "function",
			Function: oaFunction{
				Name:      tu.ToolName,
				Arguments: string(tu.ToolArgsRaw),
			},
		})
	}

	return []oaMessage{wire}, nil
}

func flattenText(blocks []uif.Content) string {
	var buf bytes.Buffer
	for _, b := range blocks {
		if b.Kind == uif.ContentText {
			buf.WriteString(b.Text)
		}
	}
	return buf.String()
}

func mustJSON(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// ResponseIn parses a non-streaming OpenAI response body into UIF.
func (OpenAITransformer) ResponseIn(raw []byte, requestedModel string) (*uif.Response, error) {
	var wire oaResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}

	resp := &uif.Response{
		ID:        wire.ID,
		CreatedAt: wire.Created,
		Model:     requestedModel,
	}

	if wire.Usage != nil {
		resp.Usage = uif.Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
		}
		if wire.Usage.PromptTokensDetails != nil && wire.Usage.PromptTokensDetails.CachedTokens > 0 {
			v := wire.Usage.PromptTokensDetails.CachedTokens
			resp.Usage.CacheReadInputTokens = &v
		}
		if wire.Usage.CompletionTokensDetails != nil && wire.Usage.CompletionTokensDetails.ReasoningTokens > 0 {
			v := wire.Usage.CompletionTokensDetails.ReasoningTokens
			resp.Usage.ReasoningTokens = &v
		}
	}

	for _, c := range wire.Choices {
		if c.Message == nil {
			continue
		}
		msg, err := decodeOAMessage(*c.Message)
		if err != nil {
			return nil, err
		}

		stop := uif.StopOther
		if c.FinishReason != nil {
			if mapped, ok := oaStopToUIF[*c.FinishReason]; ok {
				stop = mapped
			}
		}

		resp.Choices = append(resp.Choices, uif.Choice{Index: c.Index, Message: msg, StopReason: stop})
	}

	return resp, nil
}

// ResponseOut serializes a UIF response into an OpenAI response body.
func (OpenAITransformer) ResponseOut(resp *uif.Response) ([]byte, error) {
	wire := oaResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.CreatedAt,
		Model:   resp.Model,
		Usage: &oaUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.Total(),
		},
	}

	for _, c := range resp.Choices {
		msgs, err := encodeOAMessage(c.Message)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			continue
		}
		finish := uifStopToOA[c.StopReason]
		wire.Choices = append(wire.Choices, oaChoice{Index: c.Index, Message: &msgs[0], FinishReason: &finish})
	}

	return json.Marshal(wire)
}

// StreamChunkIn parses one OpenAI SSE data payload (already stripped of
// the "data: " prefix) into zero or more UIF stream chunks.
func (OpenAITransformer) StreamChunkIn(raw []byte) ([]uif.StreamChunk, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("[DONE]")) {
		return []uif.StreamChunk{{Kind: uif.ChunkDone}}, nil
	}

	var wire oaResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("openai: decode stream chunk: %w", err)
	}

	var out []uif.StreamChunk

	if wire.Usage != nil {
		out = append(out, uif.StreamChunk{
			Kind: uif.ChunkUsageDelta,
			Usage: uif.Usage{
				InputTokens:  wire.Usage.PromptTokens,
				OutputTokens: wire.Usage.CompletionTokens,
			},
		})
	}

	for _, c := range wire.Choices {
		if c.Delta == nil {
			continue
		}

		if c.Delta.Role != "" {
			out = append(out, uif.StreamChunk{Kind: uif.ChunkRoleDelta, Index: c.Index, Role: uif.Role(c.Delta.Role)})
		}

		if c.Delta.ReasoningContent != nil && *c.Delta.ReasoningContent != "" {
			out = append(out, uif.StreamChunk{Kind: uif.ChunkThinkingDelta, Index: c.Index, ThinkingText: *c.Delta.ReasoningContent})
		}

		if len(c.Delta.Content) > 0 {
			blocks, err := decodeOAContent(c.Delta.Content)
			if err == nil {
				for _, b := range blocks {
					if b.Kind == uif.ContentText && b.Text != "" {
						out = append(out, uif.StreamChunk{Kind: uif.ChunkContentDelta, Index: c.Index, Text: b.Text})
					}
				}
			}
		}

		for _, tc := range c.Delta.ToolCalls {
			delta := uif.StreamChunk{Kind: uif.ChunkToolCallDelta, Index: c.Index, ArgumentsFragment: tc.Function.Arguments}
			if tc.ID != "" {
				delta.ToolCallID = tc.ID
			}
			if tc.Function.Name != "" {
				delta.ToolName = tc.Function.Name
			}
			out = append(out, delta)
		}

		if c.FinishReason != nil {
			stop := uif.StopOther
			if mapped, ok := oaStopToUIF[*c.FinishReason]; ok {
				stop = mapped
			}
			out = append(out, uif.StreamChunk{Kind: uif.ChunkStop, Index: c.Index, StopReason: stop})
		}
	}

	if wire.ID != "" || wire.Model != "" {
		out = append([]uif.StreamChunk{{Kind: uif.ChunkStart, ID: wire.ID, Model: wire.Model}}, out...)
	}

	return out, nil
}

// StreamChunkOut serializes one UIF stream chunk into an OpenAI SSE
// "data: {...}\n\n" event.
func (o OpenAITransformer) StreamChunkOut(chunk uif.StreamChunk, state *StreamState) (string, error) {
	now := time.Now().Unix()

	switch chunk.Kind {
	case uif.ChunkStart:
		if state.StartSent {
			return "", nil
		}
		state.StartSent = true
		if state.MessageID == "" {
			state.MessageID = "chatcmpl-" + uuid.NewString()
		}
		return sseEvent(oaResponse{
			ID: state.MessageID, Object: "chat.completion.chunk", Created: now, Model: state.Model,
			Choices: []oaChoice{{Index: 0, Delta: &oaMessage{Role: "assistant"}}},
		})

	case uif.ChunkContentDelta:
		return sseEvent(oaResponse{
			ID: state.MessageID, Object: "chat.completion.chunk", Created: now, Model: state.Model,
			Choices: []oaChoice{{Index: chunk.Index, Delta: &oaMessage{Content: mustJSON(chunk.Text)}}},
		})

	case uif.ChunkThinkingDelta:
		if chunk.ThinkingText == "" {
			return "", nil
		}
		return sseEvent(oaResponse{
			ID: state.MessageID, Object: "chat.completion.chunk", Created: now, Model: state.Model,
			Choices: []oaChoice{{Index: chunk.Index, Delta: &oaMessage{ReasoningContent: &chunk.ThinkingText}}},
		})

	case uif.ChunkToolCallDelta:
		idx := 0
		tc := oaToolCall{Index: &idx, Function: oaFunction{Arguments: chunk.ArgumentsFragment}}
		if chunk.ToolCallID != "" {
			tc.ID = chunk.ToolCallID
			tc.Type = "function"
		}
		if chunk.ToolName != "" {
			tc.Function.Name = chunk.ToolName
		}
		return sseEvent(oaResponse{
			ID: state.MessageID, Object: "chat.completion.chunk", Created: now, Model: state.Model,
			Choices: []oaChoice{{Index: chunk.Index, Delta: &oaMessage{ToolCalls: []oaToolCall{tc}}}},
		})

	case uif.ChunkStop:
		finish := uifStopToOA[chunk.StopReason]
		return sseEvent(oaResponse{
			ID: state.MessageID, Object: "chat.completion.chunk", Created: now, Model: state.Model,
			Choices: []oaChoice{{Index: chunk.Index, Delta: &oaMessage{}, FinishReason: &finish}},
		})

	case uif.ChunkUsageDelta:
		if state.UsageSent {
			return "", nil
		}
		state.UsageSent = true
		return sseEvent(oaResponse{
			ID: state.MessageID, Object: "chat.completion.chunk", Created: now, Model: state.Model,
			Usage: &oaUsage{PromptTokens: chunk.Usage.InputTokens, CompletionTokens: chunk.Usage.OutputTokens, TotalTokens: chunk.Usage.Total()},
		})

	case uif.ChunkDone:
		if state.DoneSent {
			return "", nil
		}
		state.DoneSent = true
		return "data: [DONE]\n\n", nil

	default:
		return "", nil
	}
}

func sseEvent(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return "data: " + string(b) + "\n\n", nil
}
