// Package feature implements the Feature Transformers chain: pure
// UIF-to-UIF mutators applied, in a fixed order, to every outbound
// request after model/provider resolution and before serialization.
package feature

import (
	"github.com/mihaisavezi/claude-code-open/internal/config"
	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// Context carries the per-request facts a feature transformer may need
// beyond the request body itself.
type Context struct {
	Provider config.Provider
	Mapped   config.ModelMapping
}

// Transformer mutates req in place for the target provider and returns
// it (or an error, which aborts the request).
type Transformer func(req *uif.Request, ctx Context) (*uif.Request, error)

// Chain runs a fixed, ordered list of Transformers.
type Chain struct {
	steps []Transformer
}

// DefaultChain is the feature pipeline every request runs through:
// token-limit clamping, reasoning-effort mapping, thinking-block policy,
// Gemini-3 quirks, payload rectification, then the optional Lua hook.
func DefaultChain(lua Transformer) Chain {
	steps := []Transformer{
		ClampMaxTokens,
		MapReasoningEffort,
		ApplyThinkingPolicy,
		ApplyGemini3Quirks,
		Rectify,
	}
	if lua != nil {
		steps = append(steps, lua)
	}
	return Chain{steps: steps}
}

// Apply runs every step in order, short-circuiting on the first error.
func (c Chain) Apply(req *uif.Request, ctx Context) (*uif.Request, error) {
	var err error
	for _, step := range c.steps {
		req, err = step(req, ctx)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}
