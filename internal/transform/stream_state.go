package transform

import "time"

// contentBlockKey identifies one in-flight content block by the
// (choice-index, tool-call-index) pair the spec requires: text blocks
// use ToolCallIndex -1.
type contentBlockKey struct {
	ChoiceIndex   int
	ToolCallIndex int
}

type contentBlockState struct {
	Kind          string // "text" | "tool_use" | "thinking"
	StartSent     bool
	StopSent      bool
	ToolCallID    string
	ToolName      string
	ArgumentsSoFar string
}

// StreamState is the per-request Cross-Protocol Stream State: it bridges
// the inbound stream parse (StreamChunkIn, keyed by the upstream
// provider's event grammar) to the outbound stream emit (StreamChunkOut,
// keyed by the client's event grammar), tracking everything needed to
// reassemble fragmented tool-call arguments and to enforce the
// exactly-one-start/exactly-one-done grammar invariant.
type StreamState struct {
	MessageID      string
	Model          string
	StartSent      bool
	DoneSent       bool
	UsageSent      bool
	Blocks         map[contentBlockKey]*contentBlockState
	NextBlockIndex int

	// ConnectedAt and FirstDeltaAt bound Time-To-First-Token: the relay
	// measures from upstream connect to the first non-empty delta.
	ConnectedAt  time.Time
	FirstDeltaAt time.Time
}

// NewStreamState constructs an empty per-request stream state.
func NewStreamState() *StreamState {
	return &StreamState{
		Blocks: make(map[contentBlockKey]*contentBlockState),
	}
}

// blockFor returns (creating if needed) the block state for a
// (choiceIndex, toolCallIndex) pair. toolCallIndex is -1 for plain text
// or thinking content.
func (s *StreamState) blockFor(choiceIndex, toolCallIndex int, kind string) *contentBlockState {
	key := contentBlockKey{ChoiceIndex: choiceIndex, ToolCallIndex: toolCallIndex}

	block, ok := s.Blocks[key]
	if !ok {
		block = &contentBlockState{Kind: kind}
		s.Blocks[key] = block
	}

	return block
}

// RecordDelta marks the first non-empty delta's arrival for TTFT timing.
// Subsequent calls are no-ops.
func (s *StreamState) RecordDelta(at time.Time) {
	if s.FirstDeltaAt.IsZero() {
		s.FirstDeltaAt = at
	}
}

// TTFT reports the time-to-first-token once both timestamps are set.
func (s *StreamState) TTFT() (time.Duration, bool) {
	if s.ConnectedAt.IsZero() || s.FirstDeltaAt.IsZero() {
		return 0, false
	}
	return s.FirstDeltaAt.Sub(s.ConnectedAt), true
}
