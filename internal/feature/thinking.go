package feature

import "github.com/mihaisavezi/claude-code-open/internal/uif"

// thinkingCapableTypes lists provider types whose wire protocol
// understands a top-level "thinking" directive.
var thinkingCapableTypes = map[string]bool{
	"anthropic":  true,
	"gcp_vertex": true,
}

// ApplyThinkingPolicy sets (or removes) the top-level thinking directive
// to match what the target provider's protocol actually supports: a
// budget only ever reaches a provider that understands it, and is
// dropped silently everywhere else rather than erroring the request.
func ApplyThinkingPolicy(req *uif.Request, ctx Context) (*uif.Request, error) {
	if !thinkingCapableTypes[ctx.Provider.Type] {
		if req.Extensions != nil {
			delete(req.Extensions, "thinking")
		}
		return req, nil
	}

	if req.ReasoningBudget == nil {
		return req, nil
	}

	if req.Extensions == nil {
		req.Extensions = map[string]any{}
	}
	req.Extensions["thinking"] = map[string]any{
		"type":          "enabled",
		"budget_tokens": *req.ReasoningBudget,
	}

	return req, nil
}
