package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient speaks the Anthropic Messages streaming protocol.
type AnthropicClient struct {
	base
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewAnthropic returns a client for the Anthropic API.
func NewAnthropic(apiKey, baseURL, defaultModel string, timeout time.Duration) *AnthropicClient {
	info := catalog[Anthropic]
	if baseURL == "" {
		baseURL = info.BaseURL
	}
	if defaultModel == "" {
		defaultModel = info.DefaultModel
	}
	return &AnthropicClient{
		base:    base{name: Anthropic, defaultModel: defaultModel},
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout),
	}
}

// SupportsVision reports whether the model accepts image input.
func (c *AnthropicClient) SupportsVision(model string) bool {
	m := c.model(model)
	return strings.HasPrefix(m, "claude-") && !strings.HasPrefix(m, "claude-2")
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// StreamCompletion streams a message completion.
func (c *AnthropicClient) StreamCompletion(ctx context.Context, req Request, onChunk func(string) error) error {
	model := c.model(req.Model)

	var blocks []anthropicBlock
	if req.Image != "" && c.SupportsVision(model) {
		mediaType, data := splitDataURL(req.Image)
		blocks = append(blocks, anthropicBlock{
			Type:   "image",
			Source: &anthropicSource{Type: "base64", MediaType: mediaType, Data: data},
		})
	}
	blocks = append(blocks, anthropicBlock{Type: "text", Text: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	payload := anthropicRequest{
		Model:       model,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: blocks}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}

	resp, err := postJSON(ctx, c.http, c.name, model, c.baseURL+"/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	err = readSSE(resp.Body, func(data string) error {
		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" {
				return deliver(onChunk, ev.Delta.Text)
			}
		case "error":
			kind := KindUnknown
			msg := "stream error"
			if ev.Error != nil {
				msg = ev.Error.Message
				switch ev.Error.Type {
				case "overloaded_error", "api_error":
					kind = KindServiceUnavailable
				case "rate_limit_error":
					kind = KindRateLimited
				case "authentication_error", "permission_error":
					kind = KindAuthFailed
				case "not_found_error":
					kind = KindModelNotFound
				}
			}
			return &Error{Kind: kind, Provider: c.name, Model: model, Message: msg}
		}
		return nil
	})
	return finishStream(c.name, model, err)
}

// splitDataURL separates "data:<type>;base64,<data>" into its parts.
// Bare payloads are assumed to be JPEG.
func splitDataURL(s string) (mediaType, data string) {
	if !strings.HasPrefix(s, "data:") {
		return "image/jpeg", s
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "image/jpeg", s
	}
	mediaType, _, _ = strings.Cut(header, ";")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return mediaType, payload
}
