// Package uif defines the Unified Internal Format: the protocol-neutral
// request, response, and stream-chunk shapes every transformer converts
// to and from. Nothing in this package knows about any wire protocol.
package uif

import "fmt"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind discriminates the Content union.
type ContentKind string

const (
	ContentText             ContentKind = "text"
	ContentImage            ContentKind = "image"
	ContentToolUse          ContentKind = "tool_use"
	ContentToolResult       ContentKind = "tool_result"
	ContentThinking         ContentKind = "thinking"
	ContentRedactedThinking ContentKind = "redacted_thinking"
)

// Content is one block of a Message's content array. Only the fields
// relevant to Kind are populated; the rest are zero.
type Content struct {
	Kind ContentKind

	// text
	Text string

	// image
	ImageURL  string
	ImageData string // base64, when inline
	MimeType  string

	// tool_use
	ToolUseID   string
	ToolName    string
	ToolArgsRaw []byte // raw JSON object

	// tool_result
	ToolResultID      string
	ToolResultContent []Content
	ToolResultIsError bool

	// thinking / redacted_thinking
	ThinkingText string
	Signature    string
	RedactedData []byte

	// ProviderFields carries opaque per-block provider extensions that
	// must be preserved verbatim when round-tripping (e.g. Gemini-3
	// thought signatures found outside the signature field).
	ProviderFields map[string]any
}

// Message is one turn in the conversation.
type Message struct {
	Role    Role
	Content []Content
}

// ToolChoice directs whether/which tool the model must invoke.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNamed    ToolChoiceMode = "named"
)

type ToolChoice struct {
	Mode ToolChoiceMode
	Name string // set when Mode == ToolChoiceNamed
}

// Tool is a callable function definition offered to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  []byte // raw JSON schema
	Strict      bool
}

// Request is the protocol-neutral inbound request.
type Request struct {
	Model           string
	Messages        []Message
	System          []Content // empty or text-only blocks
	Temperature     *float64
	TopP            *float64
	TopK            *int
	MaxTokens       *int
	StopSequences   []string
	PresencePenalty *float64
	FrequencyPenalty *float64
	ReasoningEffort string // "minimal" | "low" | "medium" | "high" | "" (unset)
	ReasoningBudget *int
	Tools           []Tool
	ToolChoice      *ToolChoice
	Stream          bool

	// Extensions carries opaque provider-specific top-level fields
	// (e.g. a client-sent `thinking: {type: enabled}` directive) that
	// feature transformers may inspect or remove.
	Extensions map[string]any
}

// Validate enforces the UnifiedRequest invariants.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 && len(r.System) == 0 {
		return fmt.Errorf("uif: request has no messages and no system prompt")
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("uif: max_tokens must be positive, got %d", *r.MaxTokens)
	}
	return nil
}

// StopReason is the closed vocabulary for why generation stopped.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopMaxTokens     StopReason = "max_tokens"
	StopSequence      StopReason = "stop_sequence"
	StopToolUse       StopReason = "tool_use"
	StopContentFilter StopReason = "content_filter"
	StopOther         StopReason = "other"
)

// Usage accounts for tokens consumed by one request.
type Usage struct {
	InputTokens            int
	OutputTokens           int
	CacheReadInputTokens   *int
	CacheCreationInputTokens *int
	ReasoningTokens        *int
}

// Total sums every reported component.
func (u Usage) Total() int {
	total := u.InputTokens + u.OutputTokens
	if u.CacheReadInputTokens != nil {
		total += *u.CacheReadInputTokens
	}
	if u.CacheCreationInputTokens != nil {
		total += *u.CacheCreationInputTokens
	}
	if u.ReasoningTokens != nil {
		total += *u.ReasoningTokens
	}
	return total
}

// Choice is one candidate completion.
type Choice struct {
	Index      int
	Message    Message
	StopReason StopReason
}

// Response is the protocol-neutral outbound response.
type Response struct {
	ID        string
	CreatedAt int64
	Model     string // rewritten to the client-requested name before emission
	Choices   []Choice
	Usage     Usage
}

// ChunkKind discriminates the StreamChunk union.
type ChunkKind string

const (
	ChunkStart           ChunkKind = "start"
	ChunkRoleDelta       ChunkKind = "role_delta"
	ChunkContentDelta    ChunkKind = "content_delta"
	ChunkToolCallDelta   ChunkKind = "tool_call_delta"
	ChunkThinkingDelta   ChunkKind = "thinking_delta"
	ChunkUsageDelta      ChunkKind = "usage_delta"
	ChunkStop            ChunkKind = "stop"
	ChunkDone            ChunkKind = "done"
)

// StreamChunk is one event of the protocol-neutral stream grammar.
type StreamChunk struct {
	Kind Kind

	// start
	ID    string
	Model string

	// role_delta
	Role Role

	Index int // choice index, for role_delta/content_delta/tool_call_delta/thinking_delta/stop

	// content_delta
	Text string

	// tool_call_delta
	ToolCallID       string
	ToolName         string
	ArgumentsFragment string

	// thinking_delta
	ThinkingText string
	Signature    string

	// usage_delta
	Usage Usage

	// stop
	StopReason StopReason
}

// Kind is an alias retained for readability at call sites (uif.ChunkKind).
type Kind = ChunkKind
