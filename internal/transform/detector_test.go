package transform

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectProtocol_ExplicitHeaderWins(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	r.Header.Set("x-protocol", "openai")
	assert.Equal(t, ProtocolOpenAI, DetectProtocol(r, nil))
}

func TestDetectProtocol_PathSuffix(t *testing.T) {
	cases := map[string]Protocol{
		"/v1/chat/completions": ProtocolOpenAI,
		"/v1/messages":         ProtocolAnthropic,
		"/v1/responses":        ProtocolResponseAPI,
	}

	for path, want := range cases {
		r := httptest.NewRequest(http.MethodPost, path, nil)
		assert.Equal(t, want, DetectProtocol(r, nil), "path=%s", path)
	}
}

func TestDetectProtocol_BodyShapeFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/custom", nil)

	assert.Equal(t, ProtocolResponseAPI, DetectProtocol(r, []byte(`{"input":[]}`)))
	assert.Equal(t, ProtocolAnthropic, DetectProtocol(r, []byte(`{"max_tokens":100,"system":"x"}`)))
	assert.Equal(t, ProtocolOpenAI, DetectProtocol(r, []byte(`{"messages":[]}`)))
}

func TestRegistry_GCPVertexSharesAnthropicInstance(t *testing.T) {
	reg := NewRegistry()

	anthropic, err := reg.Get(ProtocolAnthropic)
	assert.NoError(t, err)

	vertex, err := reg.Get(ProtocolGCPVertex)
	assert.NoError(t, err)

	assert.Same(t, anthropic, vertex)
}

func TestRegistry_UnknownProtocol(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("carrier-pigeon")
	assert.Error(t, err)
}
