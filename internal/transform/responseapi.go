package transform

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// ResponseAPITransformer implements Transformer for OpenAI's "Response
// API" protocol (POST /v1/responses): a flat item-array request/response
// shape, distinct from chat/completions' message array.
type ResponseAPITransformer struct{}

func NewResponseAPITransformer() *ResponseAPITransformer { return &ResponseAPITransformer{} }

type raRequest struct {
	Model           string          `json:"model"`
	Input           []raInputItem   `json:"input"`
	Instructions    string          `json:"instructions,omitempty"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"top_p,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
	Tools           []raTool        `json:"tools,omitempty"`
	Reasoning       *raReasoning    `json:"reasoning,omitempty"`
}

type raReasoning struct {
	Effort string `json:"effort,omitempty"`
}

type raInputItem struct {
	Type    string         `json:"type,omitempty"` // "message" | "function_call_output"
	Role    string         `json:"role,omitempty"`
	Content []raContent    `json:"content,omitempty"`
	CallID  string         `json:"call_id,omitempty"`
	Output  string         `json:"output,omitempty"`
}

type raContent struct {
	Type     string     `json:"type"` // "input_text" | "output_text" | "input_image"
	Text     string     `json:"text,omitempty"`
	ImageURL string     `json:"image_url,omitempty"`
}

type raTool struct {
	Type        string          `json:"type"` // "function"
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

type raResponse struct {
	ID     string         `json:"id"`
	Object string         `json:"object"`
	Model  string         `json:"model"`
	Output []raOutputItem `json:"output"`
	Usage  *raUsage       `json:"usage,omitempty"`
}

type raOutputItem struct {
	Type      string      `json:"type"` // "message" | "function_call" | "reasoning"
	ID        string      `json:"id,omitempty"`
	Role      string      `json:"role,omitempty"`
	Content   []raContent `json:"content,omitempty"`
	CallID    string      `json:"call_id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Arguments string      `json:"arguments,omitempty"`
	Summary   []raContent `json:"summary,omitempty"`
	Status    string      `json:"status,omitempty"` // "completed" | "incomplete"
}

type raUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (ResponseAPITransformer) RequestOut(raw []byte) (*uif.Request, error) {
	var wire raRequest
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("response_api: decode request: %w", err)
	}

	req := &uif.Request{
		Model:       wire.Model,
		Temperature: wire.Temperature,
		TopP:        wire.TopP,
		MaxTokens:   wire.MaxOutputTokens,
		Stream:      wire.Stream,
	}

	if wire.Instructions != "" {
		req.System = []uif.Content{{Kind: uif.ContentText, Text: wire.Instructions}}
	}

	if wire.Reasoning != nil {
		req.ReasoningEffort = wire.Reasoning.Effort
	}

	for _, item := range wire.Input {
		if item.Type == "function_call_output" {
			req.Messages = append(req.Messages, uif.Message{
				Role: uif.RoleTool,
				Content: []uif.Content{{
					Kind:              uif.ContentToolResult,
					ToolResultID:      item.CallID,
					ToolResultContent: []uif.Content{{Kind: uif.ContentText, Text: item.Output}},
				}},
			})
			continue
		}

		msg := uif.Message{Role: uif.Role(item.Role)}
		for _, c := range item.Content {
			switch c.Type {
			case "input_text", "output_text":
				msg.Content = append(msg.Content, uif.Content{Kind: uif.ContentText, Text: c.Text})
			case "input_image":
				msg.Content = append(msg.Content, uif.Content{Kind: uif.ContentImage, ImageURL: c.ImageURL})
			}
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range wire.Tools {
		req.Tools = append(req.Tools, uif.Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters, Strict: t.Strict})
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

func (ResponseAPITransformer) RequestIn(req *uif.Request) ([]byte, error) {
	wire := raRequest{
		Model:           req.Model,
		MaxOutputTokens: req.MaxTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		Stream:          req.Stream,
	}

	if len(req.System) > 0 {
		wire.Instructions = flattenText(req.System)
	}

	if req.ReasoningEffort != "" {
		wire.Reasoning = &raReasoning{Effort: req.ReasoningEffort}
	}

	for _, m := range req.Messages {
		item := raInputItem{Type: "message", Role: string(m.Role)}
		isToolResult := false

		for _, c := range m.Content {
			switch c.Kind {
			case uif.ContentText:
				kind := "input_text"
				if m.Role == uif.RoleAssistant {
					kind = "output_text"
				}
				item.Content = append(item.Content, raContent{Type: kind, Text: c.Text})
			case uif.ContentImage:
				item.Content = append(item.Content, raContent{Type: "input_image", ImageURL: c.ImageURL})
			case uif.ContentToolResult:
				isToolResult = true
				wire.Input = append(wire.Input, raInputItem{
					Type: "function_call_output", CallID: c.ToolResultID, Output: flattenText(c.ToolResultContent),
				})
			}
		}

		if !isToolResult {
			wire.Input = append(wire.Input, item)
		}
	}

	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, raTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters, Strict: t.Strict})
	}

	return json.Marshal(wire)
}

func (ResponseAPITransformer) ResponseIn(raw []byte, requestedModel string) (*uif.Response, error) {
	var wire raResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("response_api: decode response: %w", err)
	}

	msg := uif.Message{Role: uif.RoleAssistant}
	stop := uif.StopEndTurn

	for _, out := range wire.Output {
		switch out.Type {
		case "message":
			for _, c := range out.Content {
				if c.Type == "output_text" {
					msg.Content = append(msg.Content, uif.Content{Kind: uif.ContentText, Text: c.Text})
				}
			}
		case "function_call":
			stop = uif.StopToolUse
			msg.Content = append(msg.Content, uif.Content{
				Kind: uif.ContentToolUse, ToolUseID: out.CallID, ToolName: out.Name, ToolArgsRaw: []byte(out.Arguments),
			})
		}
	}

	resp := &uif.Response{
		ID:        wire.ID,
		CreatedAt: time.Now().Unix(),
		Model:     requestedModel,
		Choices:   []uif.Choice{{Index: 0, Message: msg, StopReason: stop}},
	}

	if wire.Usage != nil {
		resp.Usage = uif.Usage{InputTokens: wire.Usage.InputTokens, OutputTokens: wire.Usage.OutputTokens}
	}

	return resp, nil
}

func (ResponseAPITransformer) ResponseOut(resp *uif.Response) ([]byte, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response_api: response has no choices")
	}
	choice := resp.Choices[0]

	wire := raResponse{ID: resp.ID, Object: "response", Model: resp.Model}

	var contentBlocks []raContent
	for _, c := range choice.Message.Content {
		switch c.Kind {
		case uif.ContentText:
			contentBlocks = append(contentBlocks, raContent{Type: "output_text", Text: c.Text})
		case uif.ContentToolUse:
			wire.Output = append(wire.Output, raOutputItem{
				Type: "function_call", CallID: c.ToolUseID, Name: c.ToolName, Arguments: string(c.ToolArgsRaw), Status: "completed",
			})
		}
	}
	if len(contentBlocks) > 0 {
		wire.Output = append([]raOutputItem{{Type: "message", ID: "msg_" + uuid.NewString(), Role: "assistant", Content: contentBlocks, Status: "completed"}}, wire.Output...)
	}

	wire.Usage = &raUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}

	return json.Marshal(wire)
}

// ---- streaming: Response API uses named SSE events, one JSON envelope
// carrying {type, ...} per event, not a delta-shaped chat chunk. ----

type raStreamEvent struct {
	Type     string      `json:"type"`
	Response *raResponse `json:"response,omitempty"`
	Delta    string      `json:"delta,omitempty"`
	ItemID   string      `json:"item_id,omitempty"`
	CallID   string      `json:"call_id,omitempty"`
}

func (ResponseAPITransformer) StreamChunkIn(raw []byte) ([]uif.StreamChunk, error) {
	var ev raStreamEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("response_api: decode stream event: %w", err)
	}

	switch ev.Type {
	case "response.created":
		if ev.Response == nil {
			return nil, nil
		}
		return []uif.StreamChunk{{Kind: uif.ChunkStart, ID: ev.Response.ID, Model: ev.Response.Model}}, nil

	case "response.output_text.delta":
		return []uif.StreamChunk{{Kind: uif.ChunkContentDelta, Index: 0, Text: ev.Delta}}, nil

	case "response.function_call_arguments.delta":
		return []uif.StreamChunk{{Kind: uif.ChunkToolCallDelta, Index: 0, ToolCallID: ev.CallID, ArgumentsFragment: ev.Delta}}, nil

	case "response.completed":
		var out []uif.StreamChunk
		if ev.Response != nil && ev.Response.Usage != nil {
			out = append(out, uif.StreamChunk{Kind: uif.ChunkUsageDelta, Usage: uif.Usage{InputTokens: ev.Response.Usage.InputTokens, OutputTokens: ev.Response.Usage.OutputTokens}})
		}
		out = append(out, uif.StreamChunk{Kind: uif.ChunkStop, Index: 0, StopReason: uif.StopEndTurn}, uif.StreamChunk{Kind: uif.ChunkDone})
		return out, nil

	default:
		return nil, nil
	}
}

func (ResponseAPITransformer) StreamChunkOut(chunk uif.StreamChunk, state *StreamState) (string, error) {
	switch chunk.Kind {
	case uif.ChunkStart:
		if state.StartSent {
			return "", nil
		}
		state.StartSent = true
		if state.MessageID == "" {
			state.MessageID = "resp_" + uuid.NewString()
		}
		return raSSE("response.created", raStreamEvent{Type: "response.created", Response: &raResponse{ID: state.MessageID, Object: "response", Model: state.Model}})

	case uif.ChunkContentDelta:
		return raSSE("response.output_text.delta", raStreamEvent{Type: "response.output_text.delta", Delta: chunk.Text, ItemID: state.MessageID})

	case uif.ChunkToolCallDelta:
		return raSSE("response.function_call_arguments.delta", raStreamEvent{Type: "response.function_call_arguments.delta", Delta: chunk.ArgumentsFragment, CallID: chunk.ToolCallID})

	case uif.ChunkUsageDelta, uif.ChunkStop:
		return "", nil

	case uif.ChunkDone:
		if state.DoneSent {
			return "", nil
		}
		state.DoneSent = true
		return raSSE("response.completed", raStreamEvent{Type: "response.completed", Response: &raResponse{ID: state.MessageID, Object: "response", Model: state.Model}})

	default:
		return "", nil
	}
}

func raSSE(eventName string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return "event: " + eventName + "\ndata: " + string(b) + "\n\n", nil
}
