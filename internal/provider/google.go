package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GoogleClient speaks the Gemini generateContent streaming protocol.
type GoogleClient struct {
	base
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewGoogle returns a client for the Gemini API.
func NewGoogle(apiKey, baseURL, defaultModel string, timeout time.Duration) *GoogleClient {
	info := catalog[Google]
	if baseURL == "" {
		baseURL = info.BaseURL
	}
	if defaultModel == "" {
		defaultModel = info.DefaultModel
	}
	return &GoogleClient{
		base:    base{name: Google, defaultModel: defaultModel},
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout),
	}
}

// SupportsVision reports whether the model accepts image input.
func (c *GoogleClient) SupportsVision(model string) bool {
	m := c.model(model)
	return strings.HasPrefix(m, "gemini-1.5") || strings.HasPrefix(m, "gemini-2")
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiChunk struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// StreamCompletion streams generated content.
func (c *GoogleClient) StreamCompletion(ctx context.Context, req Request, onChunk func(string) error) error {
	model := c.model(req.Model)

	parts := []geminiPart{{Text: req.Prompt}}
	if req.Image != "" && c.SupportsVision(model) {
		mediaType, data := splitDataURL(req.Image)
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mediaType, Data: data}})
	}

	var payload geminiRequest
	payload.Contents = []geminiContent{{Role: "user", Parts: parts}}
	if req.SystemPrompt != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	payload.GenerationConfig.Temperature = req.Temperature
	payload.GenerationConfig.MaxOutputTokens = req.MaxTokens
	if payload.GenerationConfig.MaxOutputTokens <= 0 {
		payload.GenerationConfig.MaxOutputTokens = DefaultMaxTokens
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, url.PathEscape(model))
	resp, err := postJSON(ctx, c.http, c.name, model, endpoint, map[string]string{"x-goog-api-key": c.apiKey}, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	err = readSSE(resp.Body, func(data string) error {
		var chunk geminiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decode chunk: %w", err)
		}
		if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
			return &Error{Kind: KindContentFiltered, Provider: c.name, Model: model, Message: "prompt blocked: " + chunk.PromptFeedback.BlockReason}
		}
		for _, cand := range chunk.Candidates {
			if cand.FinishReason == "SAFETY" {
				return &Error{Kind: KindContentFiltered, Provider: c.name, Model: model, Message: "response blocked by safety filters"}
			}
			for _, p := range cand.Content.Parts {
				if err := deliver(onChunk, p.Text); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return finishStream(c.name, model, err)
}
