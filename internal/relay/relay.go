// Package relay implements the Streaming Relay: SSE line-buffering over
// arbitrary TCP fragmentation, chunk-by-chunk protocol translation,
// usage-injection fallback, client-disconnect detection, and TTFT
// timeout enforcement.
package relay

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/mihaisavezi/claude-code-open/internal/tokencount"
	"github.com/mihaisavezi/claude-code-open/internal/transform"
	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// Relay drains an upstream SSE response, translating each event from
// the provider's protocol to the client's, and writes the result to w
// as it arrives.
type Relay struct {
	logger  *slog.Logger
	counter *tokencount.Counter
}

// New constructs a Relay.
func New(logger *slog.Logger, counter *tokencount.Counter) *Relay {
	return &Relay{logger: logger, counter: counter}
}

// decompressedBody wraps resp.Body according to Content-Encoding.
func decompressedBody(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// Options configures one relay run.
type Options struct {
	RequestedModel  string
	TTFTTimeout     time.Duration
	PresetInput     int
	ProviderTf      transform.Transformer
	ClientTf        transform.Transformer
}

// Result summarizes a completed (or aborted) relay run, for the caller
// to finalize token accounting and lifecycle bookkeeping.
type Result struct {
	Disconnected bool
	TimedOut     bool
	Usage        uif.Usage
	OutputText   strings.Builder
	State        *transform.StreamState
}

// Run streams resp.Body to w, translating protocols frame-by-frame,
// until the upstream closes the stream, ctx is cancelled (client
// disconnect), or the TTFT deadline expires with no bytes yet received.
func (r *Relay) Run(ctx context.Context, w http.ResponseWriter, resp *http.Response, opts Options) (*Result, error) {
	body, err := decompressedBody(resp)
	if err != nil {
		return nil, fmt.Errorf("relay: decompress: %w", err)
	}

	flusher, _ := w.(http.Flusher)
	state := transform.NewStreamState()
	state.ConnectedAt = time.Now()
	state.Model = opts.RequestedModel

	result := &Result{State: state}

	frames := make(chan []byte, 8)
	readErr := make(chan error, 1)

	go func() {
		defer close(frames)
		readErr <- scanSSEFrames(body, frames)
	}()

	ttftTimer := time.NewTimer(opts.TTFTTimeout)
	defer ttftTimer.Stop()
	gotFirstByte := false

	for {
		select {
		case <-ctx.Done():
			result.Disconnected = true
			return result, nil

		case <-ttftTimer.C:
			if !gotFirstByte {
				result.TimedOut = true
				return result, fmt.Errorf("relay: TTFT timeout after %s", opts.TTFTTimeout)
			}

		case frame, ok := <-frames:
			if !ok {
				if err := <-readErr; err != nil && err != io.EOF {
					return result, fmt.Errorf("relay: read upstream: %w", err)
				}
				return result, nil
			}

			if !gotFirstByte {
				gotFirstByte = true
				state.RecordDelta(time.Now())
			}

			chunks, err := opts.ProviderTf.StreamChunkIn(frame)
			if err != nil {
				r.logger.Warn("relay: dropping unparsable upstream frame", "error", err)
				continue
			}

			for _, chunk := range chunks {
				if chunk.Kind == uif.ChunkContentDelta {
					result.OutputText.WriteString(chunk.Text)
				}
				if chunk.Kind == uif.ChunkUsageDelta {
					result.Usage = chunk.Usage
				}

				out, err := opts.ClientTf.StreamChunkOut(chunk, state)
				if err != nil {
					return result, fmt.Errorf("relay: serialize chunk: %w", err)
				}
				if out == "" {
					continue
				}

				if _, err := io.WriteString(w, out); err != nil {
					result.Disconnected = true
					return result, nil
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
		}
	}
}

// FinalizeUsage writes one usage-delta event, after whatever the relayed
// stream already emitted, when the upstream never reported usage, using
// the Token Counter's reconciled estimate.
func (r *Relay) FinalizeUsage(w http.ResponseWriter, state *transform.StreamState, clientTf transform.Transformer, result *Result, presetInput int) {
	if result.Usage.InputTokens > 0 || result.Usage.OutputTokens > 0 {
		return
	}

	usage := r.counter.Reconcile(result.Usage, presetInput, result.OutputText.String())
	out, err := clientTf.StreamChunkOut(uif.StreamChunk{Kind: uif.ChunkUsageDelta, Usage: usage}, state)
	if err == nil && out != "" {
		io.WriteString(w, out)
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

// scanSSEFrames splits body on blank-line-delimited SSE frames,
// tolerating arbitrary TCP fragmentation by retaining a partial frame
// across Read calls, and emits each frame's "data: " payload bytes.
func scanSSEFrames(body io.Reader, out chan<- []byte) error {
	reader := bufio.NewReaderSize(body, 64*1024)
	var pending bytes.Buffer

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			pending.WriteString(line)
		}

		trimmed := strings.TrimRight(line, "\r\n")

		if trimmed == "" && pending.Len() > 0 {
			emitFrame(pending.String(), out)
			pending.Reset()
		}

		if err != nil {
			if pending.Len() > 0 {
				emitFrame(pending.String(), out)
			}
			return err
		}
	}
}

func emitFrame(frame string, out chan<- []byte) {
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimRight(line, "\r")
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			out <- []byte(data)
		} else if data, ok := strings.CutPrefix(line, "data:"); ok {
			out <- []byte(strings.TrimSpace(data))
		}
	}
}
