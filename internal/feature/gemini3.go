package feature

import (
	"encoding/base64"
	"strings"

	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// thoughtSignatureSeparator delimits a tool-call id from an
// inline-encoded thought signature: "<id>__thought__<signature>".
const thoughtSignatureSeparator = "__thought__"

// dummyThoughtSignature is the sentinel Gemini-3 accepts in place of a
// real signature when none could be recovered, base64("skip_thought_signature_validator").
var dummyThoughtSignature = base64.StdEncoding.EncodeToString([]byte("skip_thought_signature_validator"))

// IsGemini3Model reports whether model is any Gemini-3 variant.
func IsGemini3Model(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemini-3")
}

// IsGemini3Flash reports whether model is specifically a Gemini-3 Flash
// variant, which uses a different reasoning-effort mapping tier.
func IsGemini3Flash(model string) bool {
	return strings.Contains(strings.ToLower(model), "gemini-3-flash")
}

// reasoningEffortToThinkingLevel maps a client reasoning-effort tier to
// Gemini-3's thinking_level, which differs between the Flash and
// non-Flash variants at the "minimal", "medium" and "disable"/"none" tiers.
func reasoningEffortToThinkingLevel(effort string, flash bool) string {
	switch effort {
	case "minimal":
		if flash {
			return "minimal"
		}
		return "low"
	case "low":
		return "low"
	case "medium":
		if flash {
			return "medium"
		}
		return "high"
	case "high":
		return "high"
	case "disable", "none":
		if flash {
			return "minimal"
		}
		return "low"
	default:
		return "low"
	}
}

// ApplyGemini3Quirks implements Gemini-3's thought-signature handling:
// for Gemini-3 targets it maps reasoning effort to thinking_level and
// ensures every tool_use block carries a recoverable signature (real,
// extracted, or a synthesized dummy); for every other target it strips
// any inline-encoded signature back down to a bare tool-call id, since
// non-Gemini-3 upstreams do not understand the encoding.
func ApplyGemini3Quirks(req *uif.Request, ctx Context) (*uif.Request, error) {
	model := ctx.Mapped.Mapped
	if model == "" {
		model = req.Model
	}

	if !IsGemini3Model(model) {
		stripThoughtSignatures(req)
		return req, nil
	}

	if req.ReasoningEffort != "" {
		if req.Extensions == nil {
			req.Extensions = map[string]any{}
		}
		req.Extensions["thinking_level"] = reasoningEffortToThinkingLevel(req.ReasoningEffort, IsGemini3Flash(model))
	}

	if req.Temperature == nil {
		defaultTemp := 1.0
		req.Temperature = &defaultTemp
	}

	for mi := range req.Messages {
		for ci := range req.Messages[mi].Content {
			block := &req.Messages[mi].Content[ci]
			if block.Kind != uif.ContentToolUse {
				continue
			}

			sig, ok := extractThoughtSignature(block)
			if !ok {
				sig = dummyThoughtSignature
			}
			block.ToolUseID = encodeToolCallIDWithSignature(baseToolCallID(block.ToolUseID), sig)
		}
	}

	return req, nil
}

// extractThoughtSignature recovers a thought signature in the priority
// order Gemini-3 requires: provider_specific_fields.thought_signature,
// then the nested function.provider_specific_fields.thought_signature,
// then extra_content.google.thought_signature, then an inline-encoded
// tool-call id suffix.
func extractThoughtSignature(block *uif.Content) (string, bool) {
	if block.ProviderFields != nil {
		if sig, ok := stringField(block.ProviderFields, "thought_signature"); ok {
			return sig, true
		}
		if fn, ok := block.ProviderFields["function"].(map[string]any); ok {
			if sig, ok := stringField(fn, "thought_signature"); ok {
				return sig, true
			}
		}
		if extra, ok := block.ProviderFields["extra_content"].(map[string]any); ok {
			if google, ok := extra["google"].(map[string]any); ok {
				if sig, ok := stringField(google, "thought_signature"); ok {
					return sig, true
				}
			}
		}
	}

	if idx := strings.Index(block.ToolUseID, thoughtSignatureSeparator); idx >= 0 {
		return block.ToolUseID[idx+len(thoughtSignatureSeparator):], true
	}

	return "", false
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func encodeToolCallIDWithSignature(id, signature string) string {
	return id + thoughtSignatureSeparator + signature
}

func baseToolCallID(id string) string {
	if idx := strings.Index(id, thoughtSignatureSeparator); idx >= 0 {
		return id[:idx]
	}
	return id
}

// stripThoughtSignatures removes any inline-encoded signature suffix
// from tool-call ids before the request reaches a non-Gemini-3 upstream.
func stripThoughtSignatures(req *uif.Request) {
	for mi := range req.Messages {
		for ci := range req.Messages[mi].Content {
			block := &req.Messages[mi].Content[ci]
			if block.Kind == uif.ContentToolUse {
				block.ToolUseID = baseToolCallID(block.ToolUseID)
			}
		}
	}
}
