// Package lifecycle implements the Request Lifecycle Engine: the state
// machine that composes authentication, rate limiting, protocol
// detection, model/provider resolution, feature transforms, upstream
// dispatch, and streaming relay for every inbound request.
package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mihaisavezi/claude-code-open/internal/auth"
	"github.com/mihaisavezi/claude-code-open/internal/config"
	"github.com/mihaisavezi/claude-code-open/internal/feature"
	"github.com/mihaisavezi/claude-code-open/internal/relay"
	"github.com/mihaisavezi/claude-code-open/internal/selector"
	"github.com/mihaisavezi/claude-code-open/internal/tokencount"
	"github.com/mihaisavezi/claude-code-open/internal/transform"
	"github.com/mihaisavezi/claude-code-open/internal/transport"
	"github.com/mihaisavezi/claude-code-open/internal/uif"
)

// Stage names the state machine's stations, in traversal order.
type Stage string

const (
	StageReceived      Stage = "received"
	StageAuthenticated Stage = "authenticated"
	StageAdmitted      Stage = "admitted"
	StageNormalized    Stage = "normalized"
	StageResolved      Stage = "resolved"
	StageDispatched    Stage = "dispatched"
	StageStreaming     Stage = "streaming"
	StageAwaitingResp  Stage = "awaiting_response"
	StageFinalized     Stage = "finalized"
)

// StreamCancelHandle lets the HTTP layer and the relay coordinate
// cancellation: Cancel is called on client disconnect, Complete on a
// clean finish; whichever happens first wins, and both are idempotent.
type StreamCancelHandle struct {
	completed bool
	cancelled bool
	cancel    context.CancelFunc
}

func newStreamCancelHandle(cancel context.CancelFunc) *StreamCancelHandle {
	return &StreamCancelHandle{cancel: cancel}
}

func (h *StreamCancelHandle) Cancel() {
	if h.completed || h.cancelled {
		return
	}
	h.cancelled = true
	h.cancel()
}

func (h *StreamCancelHandle) Complete() {
	if h.completed || h.cancelled {
		return
	}
	h.completed = true
}

// Engine wires every subsystem together to serve one inbound request.
type Engine struct {
	Config     *config.Manager
	Transforms *transform.Registry
	Selector   *selector.Selector
	Gate       *auth.Gate
	Ejector    *selector.Ejector
	Counter    *tokencount.Counter
	Relay      *relay.Relay
	Features   func(lua feature.Transformer) feature.Chain
	HTTPClient *http.Client
	Logger     *slog.Logger

	LuaHooks func(providerKey string) feature.Transformer

	// TTFTTimeout bounds how long the relay waits for the first byte of
	// a streaming upstream response before declaring a timeout.
	TTFTTimeout time.Duration
}

// NewEngine constructs an Engine with sensible defaults for the
// HTTP client and TTFT timeout.
func NewEngine(cfgMgr *config.Manager, logger *slog.Logger) *Engine {
	counter := tokencount.New()

	return &Engine{
		Config:     cfgMgr,
		Transforms: transform.NewRegistry(),
		Ejector:    selector.NewEjector(),
		Gate:       auth.New(),
		Counter:    counter,
		Relay:      relay.New(logger, counter),
		HTTPClient:  &http.Client{Timeout: 10 * time.Minute},
		Logger:      logger,
		TTFTTimeout: 30 * time.Second,
	}
}

// ServeHTTP drives one request through the full lifecycle.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stage := StageReceived

	cfg := e.Config.Get()
	if cfg == nil {
		transport.WriteError(w, transform.ProtocolOpenAI, transport.New(transport.ErrInternal, "configuration not loaded"))
		return
	}

	if e.Selector == nil {
		e.Selector = selector.New(e.Ejector)
	}

	plaintextKey, ok := auth.ExtractKey(r)
	if !ok {
		transport.WriteError(w, transform.ProtocolOpenAI, transport.New(transport.ErrAuthentication, "missing credential"))
		return
	}

	credential, ok := auth.Authenticate(cfg, plaintextKey)
	if !ok {
		transport.WriteError(w, transform.ProtocolOpenAI, transport.New(transport.ErrAuthentication, "invalid credential"))
		return
	}
	stage = StageAuthenticated

	if !e.Gate.Allow(credential.KeyHash) {
		transport.WriteError(w, transform.ProtocolOpenAI, transport.New(transport.ErrRateLimited, "rate limit exceeded"))
		return
	}
	stage = StageAdmitted

	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		transport.WriteError(w, transform.ProtocolOpenAI, transport.New(transport.ErrInvalidRequest, "failed to read body"))
		return
	}

	clientProtocol := transform.DetectProtocol(r, body)
	clientTf, err := e.Transforms.Get(clientProtocol)
	if err != nil {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrInvalidRequest, err.Error()))
		return
	}

	req, err := clientTf.RequestOut(body)
	if err != nil {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrInvalidRequest, err.Error()))
		return
	}
	stage = StageNormalized

	if !credential.IsModelAllowed(req.Model) {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrPermission, fmt.Sprintf("model %q not permitted for this credential", req.Model)))
		return
	}

	candidate, err := e.Selector.Select(cfg, req.Model)
	if err != nil {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrUpstreamUnavailable, err.Error()))
		return
	}
	stage = StageResolved

	requestedModel := req.Model
	mapped := candidate.Mapping.Mapped
	if mapped == "" {
		mapped = req.Model
	}

	var lua feature.Transformer
	if e.LuaHooks != nil {
		lua = e.LuaHooks(candidate.Provider.Key)
	}
	chain := feature.DefaultChain(lua)

	req.Model = mapped
	req, err = chain.Apply(req, feature.Context{Provider: candidate.Provider, Mapped: candidate.Mapping})
	if err != nil {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrInternal, err.Error()))
		return
	}

	presetInput := e.Counter.CountRequestInput(req)

	providerTf, err := e.Transforms.Get(providerProtocol(candidate.Provider.Type))
	if err != nil {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrInternal, err.Error()))
		return
	}

	upstreamBody, err := providerTf.RequestIn(req)
	if err != nil {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrInternal, err.Error()))
		return
	}

	upstreamURL, err := transport.BuildUpstreamURL(candidate.Provider, mapped)
	if err != nil {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrInvalidRequest, err.Error()))
		return
	}
	stage = StageDispatched

	ctx, cancel := context.WithCancel(r.Context())
	handle := newStreamCancelHandle(cancel)
	defer handle.Complete()

	go func() {
		<-r.Context().Done()
		handle.Cancel()
	}()

	resp, err := e.dispatchWithRetry(ctx, candidate.Provider, upstreamURL, upstreamBody)
	if err != nil {
		e.Ejector.RecordFailure(candidate.Provider.Key, 0)
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrUpstreamUnavailable, sanitizeTransportError(err)))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		e.Ejector.RecordFailure(candidate.Provider.Key, selector.RetryAfterFromHeader(resp.Header))
	} else if resp.StatusCode >= 500 {
		e.Ejector.RecordFailure(candidate.Provider.Key, 0)
	} else {
		e.Ejector.RecordSuccess(candidate.Provider.Key)
	}

	if req.Stream {
		stage = StageStreaming
		e.serveStream(ctx, w, resp, clientTf, providerTf, requestedModel, presetInput)
	} else {
		stage = StageAwaitingResp
		e.serveNonStreaming(w, resp, clientTf, providerTf, clientProtocol, requestedModel, presetInput)
	}

	stage = StageFinalized
	e.Logger.Info("request completed", "stage", stage, "provider", candidate.Provider.Key, "model", requestedModel)
}

func providerProtocol(providerType string) transform.Protocol {
	switch providerType {
	case "anthropic", "gcp_vertex":
		return transform.ProtocolAnthropic
	case "response_api":
		return transform.ProtocolResponseAPI
	default:
		return transform.ProtocolOpenAI
	}
}

// dispatchWithRetry implements the retry policy: at most one retry, and
// only for the initial connection attempt — never once any response
// bytes have been read, let alone written to the client.
func (e *Engine) dispatchWithRetry(ctx context.Context, p config.Provider, url string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		transport.SetAuthHeaders(httpReq, p)

		resp, err := e.HTTPClient.Do(httpReq)
		if err == nil {
			return resp, nil
		}

		lastErr = err
	}

	return nil, fmt.Errorf("upstream dispatch failed after retry: %w", lastErr)
}

func responseOutputText(resp *uif.Response) string {
	var sb strings.Builder
	for _, choice := range resp.Choices {
		for _, block := range choice.Message.Content {
			if block.Kind == uif.ContentText {
				sb.WriteString(block.Text)
			}
		}
	}
	return sb.String()
}

func (e *Engine) serveNonStreaming(w http.ResponseWriter, resp *http.Response, clientTf, providerTf transform.Transformer, clientProtocol transform.Protocol, requestedModel string, presetInput int) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrUpstreamError, "failed to read upstream body"))
		return
	}

	if resp.StatusCode >= 400 {
		transport.WriteError(w, clientProtocol, classifyUpstreamError(resp.StatusCode, raw))
		return
	}

	uifResp, err := providerTf.ResponseIn(raw, requestedModel)
	if err != nil {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrUpstreamError, err.Error()))
		return
	}

	uifResp.Usage = e.Counter.Reconcile(uifResp.Usage, presetInput, responseOutputText(uifResp))

	out, err := clientTf.ResponseOut(uifResp)
	if err != nil {
		transport.WriteError(w, clientProtocol, transport.New(transport.ErrInternal, err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (e *Engine) serveStream(ctx context.Context, w http.ResponseWriter, resp *http.Response, clientTf, providerTf transform.Transformer, requestedModel string, presetInput int) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	result, err := e.Relay.Run(ctx, w, resp, relay.Options{
		RequestedModel: requestedModel,
		TTFTTimeout:    e.TTFTTimeout,
		PresetInput:    presetInput,
		ProviderTf:     providerTf,
		ClientTf:       clientTf,
	})
	if err != nil {
		e.Logger.Warn("stream ended with error", "error", err)
		return
	}

	if result != nil && !result.Disconnected && !result.TimedOut {
		e.Relay.FinalizeUsage(w, result.State, clientTf, result, presetInput)
	}
}

// rawURLPattern matches absolute URLs and bare host:port pairs that
// Go's net/http client embeds verbatim in dial/transport errors.
var rawURLPattern = regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://\S+|\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}(?::[0-9]+)?\b`)

// sanitizeTransportError reduces a net/http transport error to a
// message safe to return to the client: dial/transport errors carry
// the full dialed URL (and sometimes a resolved IP), which must never
// reach the caller.
func sanitizeTransportError(err error) string {
	msg := rawURLPattern.ReplaceAllString(err.Error(), "[upstream]")
	return truncateMessage(msg)
}

// canonicalErrorMessageMaxLen is the longest canonical upstream error
// message passed through to the client before truncation.
const canonicalErrorMessageMaxLen = 500

// canonicalUpstreamErrorMessage extracts a human-readable message from
// an upstream error body, checking error.message, then error as a bare
// string, then message, falling back to the raw body when none of
// those shapes match.
func canonicalUpstreamErrorMessage(raw []byte) string {
	var parsed map[string]any
	if json.Unmarshal(raw, &parsed) == nil {
		if errObj, ok := parsed["error"].(map[string]any); ok {
			if msg, ok := errObj["message"].(string); ok && msg != "" {
				return msg
			}
		}
		if msg, ok := parsed["error"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := parsed["message"].(string); ok && msg != "" {
			return msg
		}
	}

	return string(raw)
}

// truncateMessage caps msg at canonicalErrorMessageMaxLen runes,
// appending an ellipsis when it had to cut.
func truncateMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= canonicalErrorMessageMaxLen {
		return msg
	}
	return string(runes[:canonicalErrorMessageMaxLen]) + "..."
}

func classifyUpstreamError(status int, raw []byte) *transport.Error {
	msg := truncateMessage(canonicalUpstreamErrorMessage(raw))

	switch {
	case status == http.StatusTooManyRequests:
		return transport.New(transport.ErrUpstreamRateLimited, msg)
	case status >= 500:
		return transport.New(transport.ErrUpstreamUnavailable, msg)
	default:
		return transport.New(transport.ErrUpstreamError, msg)
	}
}
