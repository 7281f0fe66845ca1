// Package transport implements the Transport Helpers subsystem:
// per-provider upstream request assembly (URL + auth headers) and the
// error taxonomy that maps transport/upstream failures to client-facing
// error bodies.
package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mihaisavezi/claude-code-open/internal/config"
)

// BuildUpstreamURL returns the URL to dial for provider, given the
// already-mapped upstream model name (only used by the GCP-Vertex
// builder, which embeds the model in the path).
func BuildUpstreamURL(p config.Provider, mappedModel string) (string, error) {
	switch p.Type {
	case "gcp_vertex":
		return buildVertexURL(p, mappedModel)
	default:
		return p.APIBase, nil
	}
}

// buildVertexURL constructs the Vertex AI publisher-model endpoint,
// rejecting any path segment that could escape the intended resource
// path: empty segments, ".", "..", or segments containing a slash or
// backslash.
func buildVertexURL(p config.Provider, model string) (string, error) {
	segments := []string{p.GCPProjectID, p.GCPRegion, model}
	for _, seg := range segments {
		if err := validatePathSegment(seg); err != nil {
			return "", fmt.Errorf("transport: vertex url: %w", err)
		}
	}

	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:rawPredict",
		p.GCPRegion, p.GCPProjectID, p.GCPRegion, model,
	), nil
}

func validatePathSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("empty path segment")
	}
	if seg == "." || seg == ".." {
		return fmt.Errorf("path-traversal segment %q rejected", seg)
	}
	if strings.ContainsAny(seg, "/\\") {
		return fmt.Errorf("path segment %q contains a separator", seg)
	}
	return nil
}

// SetAuthHeaders applies the per-provider-type credential scheme to an
// outbound upstream request.
func SetAuthHeaders(req *http.Request, p config.Provider) {
	switch p.Type {
	case "openai", "response_api":
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	case "anthropic":
		req.Header.Set("x-api-key", p.APIKey)
		req.Header.Set("anthropic-version", defaultString(p.AnthropicVersion, "2023-06-01"))
		applyBetaHeader(req, p)
	case "gcp_vertex":
		req.Header.Set("Authorization", "Bearer "+p.APIKey) // p.APIKey holds a short-lived OAuth token
		req.Header.Set("anthropic-version", "vertex-2023-10-16")
		applyBetaHeader(req, p)
	}

	req.Header.Set("Content-Type", "application/json")
}

func applyBetaHeader(req *http.Request, p config.Provider) {
	if p.AnthropicBeta == "" {
		return
	}

	switch p.BetaPolicy {
	case "passthrough":
		req.Header.Set("anthropic-beta", p.AnthropicBeta)
	case "allowlist":
		if filtered := filterBetaFlags(p.AnthropicBeta, p.BetaAllowlist); filtered != "" {
			req.Header.Set("anthropic-beta", filtered)
		}
	default: // "drop" or unset: the safe default
		return
	}
}

// filterBetaFlags keeps only the comma-separated beta flags in raw
// that also appear in allowlist, preserving raw's order.
func filterBetaFlags(raw string, allowlist []string) string {
	allowed := make(map[string]bool, len(allowlist))
	for _, a := range allowlist {
		allowed[strings.TrimSpace(a)] = true
	}

	var kept []string
	for _, flag := range strings.Split(raw, ",") {
		flag = strings.TrimSpace(flag)
		if flag != "" && allowed[flag] {
			kept = append(kept, flag)
		}
	}

	return strings.Join(kept, ",")
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
