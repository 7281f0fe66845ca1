// Package transform implements the protocol transformer pipeline: four
// hooks per wire protocol (RequestOut/RequestIn/ResponseIn/ResponseOut,
// plus their streaming counterparts) that convert between a client's or
// provider's raw JSON and the protocol-neutral uif types. Nothing
// outside this package, and nothing inside any single Transformer
// implementation, ever converts directly between two wire protocols.
package transform

import (
	"fmt"

	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// Protocol names the wire protocol a client speaks or a provider
// natively accepts.
type Protocol string

const (
	ProtocolOpenAI      Protocol = "openai"
	ProtocolAnthropic    Protocol = "anthropic"
	ProtocolResponseAPI Protocol = "response_api"
	// ProtocolGCPVertex is wire-compatible with ProtocolAnthropic; it is
	// never a client-facing protocol, only a provider transport variant.
	ProtocolGCPVertex Protocol = "gcp_vertex"
)

// Transformer implements the four protocol-transformer hooks (and their
// streaming counterparts) for exactly one wire protocol.
type Transformer interface {
	// RequestOut parses a raw inbound request body into UIF.
	RequestOut(raw []byte) (*uif.Request, error)
	// RequestIn serializes a UIF request into this protocol's wire body,
	// to be sent upstream.
	RequestIn(req *uif.Request) ([]byte, error)
	// ResponseIn parses a raw non-streaming upstream response into UIF.
	// requestedModel is the client-requested model name, substituted for
	// whatever model name the upstream body reports.
	ResponseIn(raw []byte, requestedModel string) (*uif.Response, error)
	// ResponseOut serializes a UIF response into this protocol's wire
	// body, to be sent to the client.
	ResponseOut(resp *uif.Response) ([]byte, error)
	// StreamChunkIn parses one fragment of an upstream SSE stream into
	// zero or more UIF stream chunks.
	StreamChunkIn(raw []byte) ([]uif.StreamChunk, error)
	// StreamChunkOut serializes one UIF stream chunk into this
	// protocol's SSE event text (including the "data: " prefix and
	// trailing blank line, or "" to suppress emission).
	StreamChunkOut(chunk uif.StreamChunk, state *StreamState) (string, error)
}

// Registry resolves a Protocol to its Transformer. GCPVertex resolves to
// the same Transformer instance as Anthropic: the two are wire-identical
// and differ only in transport (URL/auth), which lives outside this
// package.
type Registry struct {
	byProtocol map[Protocol]Transformer
}

// NewRegistry builds the fixed, closed set of four transformers.
func NewRegistry() *Registry {
	anthropic := NewAnthropicTransformer()

	return &Registry{
		byProtocol: map[Protocol]Transformer{
			ProtocolOpenAI:      NewOpenAITransformer(),
			ProtocolAnthropic:    anthropic,
			ProtocolResponseAPI: NewResponseAPITransformer(),
			ProtocolGCPVertex:   anthropic,
		},
	}
}

// Get returns the Transformer for protocol, or an error if protocol is
// not one of the fixed four.
func (r *Registry) Get(protocol Protocol) (Transformer, error) {
	t, ok := r.byProtocol[protocol]
	if !ok {
		return nil, fmt.Errorf("transform: unknown protocol %q", protocol)
	}
	return t, nil
}
