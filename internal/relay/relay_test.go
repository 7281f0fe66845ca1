package relay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/claude-code-open/internal/tokencount"
	"github.com/mihaisavezi/claude-code-open/internal/transform"
)

func TestScanSSEFrames_HandlesFragmentedFrames(t *testing.T) {
	body := io.NopCloser(iotest.OneByteReader(strings.NewReader("data: {\"a\":1}\n\ndata: {\"b\":2}\n\n")))
	out := make(chan []byte, 8)

	err := scanSSEFrames(body, out)
	close(out)
	require.ErrorIs(t, err, io.EOF)

	var frames [][]byte
	for f := range out {
		frames = append(frames, f)
	}

	require.Len(t, frames, 2)
	assert.Equal(t, `{"a":1}`, string(frames[0]))
	assert.Equal(t, `{"b":2}`, string(frames[1]))
}

func TestScanSSEFrames_EmitsTrailingFrameWithoutBlankLine(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: {\"a\":1}\n"))
	out := make(chan []byte, 8)

	_ = scanSSEFrames(body, out)
	close(out)

	var frames [][]byte
	for f := range out {
		frames = append(frames, f)
	}

	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":1}`, string(frames[0]))
}

func TestRelay_Run_TranslatesFramesEndToEnd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(logger, tokencount.New())

	upstreamBody := "data: {\"id\":\"1\",\"model\":\"upstream-model\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n" +
		"data: [DONE]\n\n"

	resp := &http.Response{
		Body:   io.NopCloser(strings.NewReader(upstreamBody)),
		Header: http.Header{},
	}

	rec := httptest.NewRecorder()
	tf := transform.NewOpenAITransformer()

	result, err := r.Run(context.Background(), rec, resp, Options{
		RequestedModel: "claude-test",
		TTFTTimeout:    time.Second,
		ProviderTf:     tf,
		ClientTf:       tf,
	})
	require.NoError(t, err)
	assert.False(t, result.Disconnected)
	assert.False(t, result.TimedOut)
	assert.Equal(t, "hi", result.OutputText.String())
	assert.Contains(t, rec.Body.String(), "[DONE]")
}

func TestRelay_Run_TTFTTimeoutWithNoBytes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(logger, tokencount.New())

	pr, pw := io.Pipe()
	defer pw.Close()

	resp := &http.Response{Body: pr, Header: http.Header{}}
	rec := httptest.NewRecorder()
	tf := transform.NewOpenAITransformer()

	_, err := r.Run(context.Background(), rec, resp, Options{
		RequestedModel: "claude-test",
		TTFTTimeout:    20 * time.Millisecond,
		ProviderTf:     tf,
		ClientTf:       tf,
	})
	assert.Error(t, err)
}

func TestRelay_Run_ContextCancelMarksDisconnected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(logger, tokencount.New())

	pr, pw := io.Pipe()
	defer pw.Close()

	resp := &http.Response{Body: pr, Header: http.Header{}}
	rec := httptest.NewRecorder()
	tf := transform.NewOpenAITransformer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := r.Run(ctx, rec, resp, Options{
		RequestedModel: "claude-test",
		TTFTTimeout:    time.Second,
		ProviderTf:     tf,
		ClientTf:       tf,
	})
	require.NoError(t, err)
	assert.True(t, result.Disconnected)
}

func TestRelay_FinalizeUsage_InjectsWhenUnreported(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(logger, tokencount.New())

	state := transform.NewStreamState()
	state.Model = "claude-test"
	tf := transform.NewOpenAITransformer()
	result := &Result{}
	result.OutputText.WriteString("some output text")

	var buf bytes.Buffer
	rec := httptest.NewRecorder()
	_ = buf

	r.FinalizeUsage(rec, state, tf, result, 10)
	assert.Contains(t, rec.Body.String(), "usage")
}

func TestRelay_FinalizeUsage_SkipsWhenAlreadyReported(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(logger, tokencount.New())

	state := transform.NewStreamState()
	tf := transform.NewOpenAITransformer()
	result := &Result{}
	result.Usage.InputTokens = 5

	rec := httptest.NewRecorder()
	r.FinalizeUsage(rec, state, tf, result, 10)
	assert.Empty(t, rec.Body.String())
}
