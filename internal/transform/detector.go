package transform

import (
	"bytes"
	"net/http"
	"strings"
)

// DetectProtocol implements the client-protocol detection priority:
// explicit x-protocol header, then path heuristic, then body-shape
// heuristic, defaulting to OpenAI.
func DetectProtocol(r *http.Request, body []byte) Protocol {
	if explicit := r.Header.Get("x-protocol"); explicit != "" {
		if p, ok := normalizeProtocolHeader(explicit); ok {
			return p
		}
	}

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		return ProtocolOpenAI
	case strings.HasSuffix(path, "/messages"):
		return ProtocolAnthropic
	case strings.HasSuffix(path, "/responses"):
		return ProtocolResponseAPI
	}

	return detectFromBody(body)
}

func normalizeProtocolHeader(value string) (Protocol, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "openai", "chat", "chat_completions":
		return ProtocolOpenAI, true
	case "anthropic", "messages":
		return ProtocolAnthropic, true
	case "response_api", "responses":
		return ProtocolResponseAPI, true
	default:
		return "", false
	}
}

// detectFromBody searches the raw body bytes for quoted key names, at any
// nesting depth and without unmarshaling: an "input" key means Response
// API; a "max_tokens" key means Anthropic when there is no "messages" key
// or a "system" key is also present; anything else is OpenAI.
func detectFromBody(body []byte) Protocol {
	switch {
	case bytesHasKey(body, "input"):
		return ProtocolResponseAPI
	case bytesHasKey(body, "max_tokens") && !bytesHasKey(body, "messages"):
		return ProtocolAnthropic
	case bytesHasKey(body, "max_tokens") && bytesHasKey(body, "system"):
		return ProtocolAnthropic
	default:
		return ProtocolOpenAI
	}
}

func bytesHasKey(body []byte, key string) bool {
	needle := []byte(`"` + key + `"`)
	return bytes.Contains(body, needle)
}
