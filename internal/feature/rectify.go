package feature

import "github.com/mihaisavezi/claude-code-open/internal/uif"

// thinkingOriginTypes are the provider types that natively produced a
// thinking/redacted_thinking block and may therefore see it again.
var thinkingOriginTypes = map[string]bool{
	"anthropic":  true,
	"gcp_vertex": true,
}

// Rectify implements sanitize_provider_payload: it strips
// thinking/redacted_thinking blocks the target provider did not
// originate, strips stray signatures from whatever remains, replaces
// empty text with a single "." placeholder (providers reject empty
// text blocks and empty assistant turns), and withdraws a top-level
// thinking directive the target cannot honor given the shape of the
// last assistant turn.
func Rectify(req *uif.Request, ctx Context) (*uif.Request, error) {
	isOrigin := thinkingOriginTypes[ctx.Provider.Type]

	for mi := range req.Messages {
		msg := &req.Messages[mi]
		rectifyContent(msg, isOrigin)
	}

	if req.Extensions != nil {
		if _, has := req.Extensions["thinking"]; has && shouldRemoveTopLevelThinking(req) {
			delete(req.Extensions, "thinking")
		}
	}

	return req, nil
}

func rectifyContent(msg *uif.Message, isOrigin bool) {
	filtered := msg.Content[:0]

	for _, block := range msg.Content {
		if (block.Kind == uif.ContentThinking || block.Kind == uif.ContentRedactedThinking) && !isOrigin {
			continue
		}

		if block.Kind != uif.ContentThinking {
			block.Signature = ""
		}

		if block.Kind == uif.ContentText && block.Text == "" {
			block.Text = "."
		}

		filtered = append(filtered, block)
	}

	msg.Content = filtered

	if msg.Role == uif.RoleAssistant && len(msg.Content) == 0 {
		msg.Content = []uif.Content{{Kind: uif.ContentText, Text: "."}}
	}
}

// shouldRemoveTopLevelThinking implements the exact boolean-AND the
// original enforces: the directive is dropped only when the last
// assistant message's content is non-empty, does not open with a
// thinking/redacted_thinking block, and ends with a tool_use block — the
// shape that indicates the provider will reject "thinking enabled"
// outright.
func shouldRemoveTopLevelThinking(req *uif.Request) bool {
	var last *uif.Message
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == uif.RoleAssistant {
			last = &req.Messages[i]
			break
		}
	}

	if last == nil || len(last.Content) == 0 {
		return false
	}

	first := last.Content[0]
	if first.Kind == uif.ContentThinking || first.Kind == uif.ContentRedactedThinking {
		return false
	}

	return last.Content[len(last.Content)-1].Kind == uif.ContentToolUse
}
