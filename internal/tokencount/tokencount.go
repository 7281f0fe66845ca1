// Package tokencount implements the Token Counter: input pre-counting,
// output accumulation during streaming, and reconciliation against
// whatever usage figures the upstream actually reported.
package tokencount

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// Counter estimates token counts for models the upstream doesn't report
// usage for, and reconciles estimates against reported usage once it
// arrives.
type Counter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// New lazily loads the cl100k_base encoding on first use; GPT-family
// models use it directly, and it also serves as the Claude-family
// heuristic fallback encoder, since no embedded Claude BPE ships here.
func New() *Counter {
	return &Counter{}
}

func (c *Counter) encoding() (*tiktoken.Tiktoken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enc != nil {
		return c.enc, nil
	}

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}

	c.enc = enc
	return enc, nil
}

// CountText estimates the token count of a single string.
func (c *Counter) CountText(text string) int {
	if text == "" {
		return 0
	}

	enc, err := c.encoding()
	if err != nil {
		return approximateCount(text)
	}

	return len(enc.Encode(text, nil, nil))
}

// approximateCount is the last-resort estimate when the tiktoken
// encoding can't be loaded: roughly 4 characters per token, the
// standard rule of thumb for English prose.
func approximateCount(text string) int {
	return (len(text) + 3) / 4
}

// CountRequestInput estimates the total input tokens of req: every
// message's text content, the system prompt, and tool definitions.
func (c *Counter) CountRequestInput(req *uif.Request) int {
	var sb strings.Builder

	for _, block := range req.System {
		sb.WriteString(block.Text)
		sb.WriteByte('\n')
	}

	for _, msg := range req.Messages {
		for _, block := range msg.Content {
			switch block.Kind {
			case uif.ContentText:
				sb.WriteString(block.Text)
			case uif.ContentToolResult:
				for _, c := range block.ToolResultContent {
					sb.WriteString(c.Text)
				}
			case uif.ContentToolUse:
				sb.Write(block.ToolArgsRaw)
			}
			sb.WriteByte('\n')
		}
	}

	for _, t := range req.Tools {
		sb.WriteString(t.Name)
		sb.WriteString(t.Description)
		sb.Write(t.Parameters)
	}

	return c.CountText(sb.String())
}

// Reconcile applies the finalization rule: upstream usage wins if it
// reports a positive input or output count; otherwise the pre-computed
// input estimate is combined with a freshly counted output estimate.
func (c *Counter) Reconcile(reported uif.Usage, presetInput int, outputText string) uif.Usage {
	if reported.InputTokens > 0 || reported.OutputTokens > 0 {
		return reported
	}

	return uif.Usage{
		InputTokens:  presetInput,
		OutputTokens: c.CountText(outputText),
	}
}
