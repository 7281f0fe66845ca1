package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/claude-code-open/internal/transform"
)

func TestErrorCategory_HTTPStatus(t *testing.T) {
	cases := map[ErrorCategory]int{
		ErrInvalidRequest:     http.StatusBadRequest,
		ErrAuthentication:     http.StatusUnauthorized,
		ErrPermission:         http.StatusForbidden,
		ErrNotFound:           http.StatusNotFound,
		ErrRateLimited:        http.StatusTooManyRequests,
		ErrUpstreamRateLimited: http.StatusTooManyRequests,
		ErrUpstreamError:      http.StatusBadGateway,
		ErrUpstreamUnavailable: http.StatusServiceUnavailable,
		ErrTimeout:            http.StatusGatewayTimeout,
		ErrInternal:           http.StatusInternalServerError,
	}

	for cat, want := range cases {
		assert.Equal(t, want, cat.HTTPStatus(), "category=%s", cat)
	}
}

func TestWriteError_AnthropicShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, transform.ProtocolAnthropic, New(ErrRateLimited, "slow down"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body anthropicErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Type)
	assert.Equal(t, "rate_limit_error", body.Error.Type)
	assert.Equal(t, "slow down", body.Error.Message)
}

func TestWriteError_GCPVertexUsesAnthropicShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, transform.ProtocolGCPVertex, New(ErrUpstreamUnavailable, "down"))

	var body anthropicErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Type)
}

func TestWriteError_OpenAIShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, transform.ProtocolOpenAI, New(ErrInvalidRequest, "bad body"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body openAIErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request_error", body.Error.Type)
	assert.Equal(t, "bad body", body.Error.Message)
	assert.Equal(t, string(ErrInvalidRequest), body.Error.Code)
}
