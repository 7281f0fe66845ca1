package feature

import "github.com/mihaisavezi/claude-code-open/internal/uif"

// reasoningBudgets gives each effort tier a default Anthropic-style
// thinking budget_tokens, used when a provider wants a numeric budget
// but the client only specified an effort tier.
var reasoningBudgets = map[string]int{
	"minimal": 1024,
	"low":     2048,
	"medium":  8192,
	"high":    24576,
}

// MapReasoningEffort fills ReasoningBudget from ReasoningEffort for
// providers that need a numeric thinking budget rather than a tier
// string, leaving an explicit client-supplied budget untouched.
func MapReasoningEffort(req *uif.Request, ctx Context) (*uif.Request, error) {
	if req.ReasoningEffort == "" || req.ReasoningBudget != nil {
		return req, nil
	}

	if budget, ok := reasoningBudgets[req.ReasoningEffort]; ok {
		req.ReasoningBudget = &budget
	}

	return req, nil
}
