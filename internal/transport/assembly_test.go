package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/claude-code-open/internal/config"
)

func TestBuildUpstreamURL_NonVertexReturnsAPIBase(t *testing.T) {
	p := config.Provider{Type: "openai", APIBase: "https://api.example.com/v1/chat/completions"}
	url, err := BuildUpstreamURL(p, "ignored")
	require.NoError(t, err)
	assert.Equal(t, p.APIBase, url)
}

func TestBuildUpstreamURL_Vertex(t *testing.T) {
	p := config.Provider{Type: "gcp_vertex", GCPProjectID: "proj-1", GCPRegion: "us-east5"}
	url, err := BuildUpstreamURL(p, "claude-3-5-sonnet")
	require.NoError(t, err)
	assert.Contains(t, url, "proj-1")
	assert.Contains(t, url, "us-east5")
	assert.Contains(t, url, "claude-3-5-sonnet")
	assert.Contains(t, url, ":rawPredict")
}

func TestBuildUpstreamURL_VertexRejectsPathTraversal(t *testing.T) {
	cases := []config.Provider{
		{Type: "gcp_vertex", GCPProjectID: "../etc", GCPRegion: "us-east5"},
		{Type: "gcp_vertex", GCPProjectID: "proj-1", GCPRegion: "."},
		{Type: "gcp_vertex", GCPProjectID: "proj-1", GCPRegion: ""},
		{Type: "gcp_vertex", GCPProjectID: "proj/1", GCPRegion: "us-east5"},
	}

	for _, p := range cases {
		_, err := BuildUpstreamURL(p, "some-model")
		assert.Error(t, err, "%+v", p)
	}
}

func TestBuildUpstreamURL_VertexRejectsTraversalInMappedModel(t *testing.T) {
	p := config.Provider{Type: "gcp_vertex", GCPProjectID: "proj-1", GCPRegion: "us-east5"}
	_, err := BuildUpstreamURL(p, "../secrets")
	assert.Error(t, err)
}

func TestSetAuthHeaders_OpenAI(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	SetAuthHeaders(req, config.Provider{Type: "openai", APIKey: "sk-test"})
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestSetAuthHeaders_Anthropic(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	SetAuthHeaders(req, config.Provider{Type: "anthropic", APIKey: "sk-ant"})
	assert.Equal(t, "sk-ant", req.Header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))
}

func TestSetAuthHeaders_AnthropicBetaAllowlist(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	SetAuthHeaders(req, config.Provider{
		Type: "anthropic", APIKey: "sk-ant",
		AnthropicBeta: "prompt-caching-2024-07-31,unlisted-flag", BetaPolicy: "allowlist",
		BetaAllowlist: []string{"prompt-caching-2024-07-31"},
	})
	assert.Equal(t, "prompt-caching-2024-07-31", req.Header.Get("anthropic-beta"))
}

func TestSetAuthHeaders_AnthropicBetaAllowlistDropsUnlistedFlags(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	SetAuthHeaders(req, config.Provider{
		Type: "anthropic", APIKey: "sk-ant",
		AnthropicBeta: "unlisted-flag", BetaPolicy: "allowlist",
		BetaAllowlist: []string{"prompt-caching-2024-07-31"},
	})
	assert.Empty(t, req.Header.Get("anthropic-beta"))
}

func TestSetAuthHeaders_AnthropicBetaDefaultPolicyDrops(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	SetAuthHeaders(req, config.Provider{
		Type: "anthropic", APIKey: "sk-ant",
		AnthropicBeta: "prompt-caching-2024-07-31",
	})
	assert.Empty(t, req.Header.Get("anthropic-beta"))
}

func TestSetAuthHeaders_AnthropicBetaDropped(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	SetAuthHeaders(req, config.Provider{
		Type: "anthropic", APIKey: "sk-ant",
		AnthropicBeta: "prompt-caching-2024-07-31", BetaPolicy: "drop",
	})
	assert.Empty(t, req.Header.Get("anthropic-beta"))
}

func TestSetAuthHeaders_Vertex(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	SetAuthHeaders(req, config.Provider{Type: "gcp_vertex", APIKey: "ya29.token"})
	assert.Equal(t, "Bearer ya29.token", req.Header.Get("Authorization"))
	assert.Equal(t, "vertex-2023-10-16", req.Header.Get("anthropic-version"))
}
