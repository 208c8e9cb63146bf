package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient speaks the OpenAI chat-completions streaming protocol. Grok
// exposes the same protocol under a different base URL.
type OpenAIClient struct {
	base
	apiKey  string
	baseURL string
	http    *http.Client
	vision  func(model string) bool
}

var openAIVisionModels = map[string]bool{"gpt-4o": true, "gpt-4o-mini": true, "gpt-4-turbo": true}

// NewOpenAI returns a client for api.openai.com (or a compatible baseURL).
func NewOpenAI(apiKey, baseURL, defaultModel string, timeout time.Duration) *OpenAIClient {
	return newOpenAICompatible(OpenAI, apiKey, baseURL, defaultModel, timeout, func(m string) bool {
		return openAIVisionModels[m]
	})
}

// NewGrok returns a client for the xAI API.
func NewGrok(apiKey, baseURL, defaultModel string, timeout time.Duration) *OpenAIClient {
	return newOpenAICompatible(Grok, apiKey, baseURL, defaultModel, timeout, func(m string) bool {
		return strings.Contains(m, "vision")
	})
}

func newOpenAICompatible(name, apiKey, baseURL, defaultModel string, timeout time.Duration, vision func(string) bool) *OpenAIClient {
	info := catalog[name]
	if baseURL == "" {
		baseURL = info.BaseURL
	}
	if defaultModel == "" {
		defaultModel = info.DefaultModel
	}
	return &OpenAIClient{
		base:    base{name: name, defaultModel: defaultModel},
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout),
		vision:  vision,
	}
}

// SupportsVision reports whether the model accepts image input.
func (c *OpenAIClient) SupportsVision(model string) bool {
	return c.vision(c.model(model))
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StreamCompletion streams a chat completion.
func (c *OpenAIClient) StreamCompletion(ctx context.Context, req Request, onChunk func(string) error) error {
	model := c.model(req.Model)

	var messages []openAIMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	if req.Image != "" && c.SupportsVision(model) {
		messages = append(messages, openAIMessage{Role: "user", Content: []openAIContentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &openAIImageURL{URL: imageDataURL(req.Image)}},
		}})
	} else {
		messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	payload := openAIRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	}

	resp, err := postJSON(ctx, c.http, c.name, model, c.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.apiKey}, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	err = readSSE(resp.Body, func(data string) error {
		var chunk openAIChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decode chunk: %w", err)
		}
		if chunk.Error != nil {
			return &Error{Kind: KindUnknown, Provider: c.name, Model: model, Message: chunk.Error.Message}
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason == "content_filter" {
				return &Error{Kind: KindContentFiltered, Provider: c.name, Model: model, Message: "response blocked by content filter"}
			}
			if err := deliver(onChunk, choice.Delta.Content); err != nil {
				return err
			}
		}
		return nil
	})
	return finishStream(c.name, model, err)
}

// imageDataURL wraps a bare base64 payload in a data URL.
func imageDataURL(b64 string) string {
	if strings.HasPrefix(b64, "data:") {
		return b64
	}
	return "data:image/jpeg;base64," + b64
}
