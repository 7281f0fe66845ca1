package feature

import "github.com/mihaisavezi/claude-code-open/internal/uif"

// maxAllowedTokens is the hard ceiling applied regardless of provider
// overrides, a last-resort guard against a misconfigured provider
// accepting an unbounded max_tokens value.
const maxAllowedTokens = 1 << 20

// ClampMaxTokens enforces the provider's per-model-mapping override (if
// any) and the absolute ceiling, never letting a request exceed either.
func ClampMaxTokens(req *uif.Request, ctx Context) (*uif.Request, error) {
	limit := maxAllowedTokens

	if raw, ok := ctx.Mapped.ParamOverrides["max_tokens"]; ok {
		if v, ok := toInt(raw); ok && v < limit {
			limit = v
		}
	}

	if req.MaxTokens == nil {
		return req, nil
	}

	if *req.MaxTokens > limit {
		clamped := limit
		req.MaxTokens = &clamped
	}

	return req, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
