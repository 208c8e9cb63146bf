package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient talks to a local Ollama server. No API key is needed.
type OllamaClient struct {
	base
	baseURL string
	http    *http.Client
}

// ModelSuitability rates known local model families per capability (1-10).
var ModelSuitability = map[string]map[string]int{
	"llama3.3":           {"general": 9, "coding": 9, "reasoning": 9, "creative": 8},
	"llama3.2":           {"general": 9, "coding": 8, "reasoning": 9, "creative": 8},
	"llama3.1":           {"general": 9, "coding": 8, "reasoning": 9, "creative": 8},
	"gemma3":             {"general": 9, "coding": 8, "reasoning": 9, "creative": 8},
	"gemma2":             {"general": 8, "coding": 7, "reasoning": 8, "creative": 8},
	"qwen3":              {"general": 9, "coding": 9, "reasoning": 9, "creative": 8},
	"qwen2.5":            {"general": 8, "coding": 8, "reasoning": 8, "creative": 7},
	"phi4":               {"general": 8, "coding": 9, "reasoning": 9, "creative": 7},
	"phi4-mini":          {"general": 7, "coding": 8, "reasoning": 8, "creative": 6},
	"qwen3-coder":        {"general": 7, "coding": 10, "reasoning": 8, "creative": 5},
	"qwen2.5-coder":      {"general": 7, "coding": 10, "reasoning": 8, "creative": 5},
	"deepseek-coder-v2":  {"general": 7, "coding": 10, "reasoning": 8, "creative": 5},
	"deepseek-coder":     {"general": 6, "coding": 9, "reasoning": 7, "creative": 4},
	"codellama":          {"general": 6, "coding": 9, "reasoning": 7, "creative": 5},
	"starcoder2":         {"general": 5, "coding": 9, "reasoning": 6, "creative": 4},
	"codegemma":          {"general": 6, "coding": 9, "reasoning": 7, "creative": 5},
	"devstral":           {"general": 7, "coding": 10, "reasoning": 8, "creative": 5},
	"deepseek-r1":        {"general": 9, "coding": 9, "reasoning": 10, "creative": 7},
	"deepseek-v3":        {"general": 9, "coding": 9, "reasoning": 9, "creative": 8},
	"mistral":            {"general": 8, "coding": 8, "reasoning": 8, "creative": 7},
	"mistral-nemo":       {"general": 8, "coding": 8, "reasoning": 8, "creative": 7},
	"mistral-small":      {"general": 8, "coding": 8, "reasoning": 8, "creative": 7},
	"phi3":               {"general": 7, "coding": 8, "reasoning": 7, "creative": 6},
	"glm-4.7:cloud":      {"general": 9, "coding": 9, "reasoning": 9, "creative": 8},
	"minimax-m2.1:cloud": {"general": 9, "coding": 8, "reasoning": 9, "creative": 9},
	"llava":              {"general": 7, "coding": 5, "reasoning": 6, "creative": 6},
	"llama3.2-vision":    {"general": 8, "coding": 6, "reasoning": 7, "creative": 7},
}

var ollamaVisionFamilies = []string{"llava", "llama3.2-vision", "moondream", "bakllava"}

// NewOllama returns a client for the Ollama server at baseURL.
func NewOllama(baseURL, defaultModel string, timeout time.Duration) *OllamaClient {
	info := catalog[Ollama]
	if baseURL == "" {
		baseURL = info.BaseURL
	}
	if defaultModel == "" {
		defaultModel = info.DefaultModel
	}
	return &OllamaClient{
		base:    base{name: Ollama, defaultModel: defaultModel},
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout),
	}
}

// SupportsVision reports whether the model accepts image input.
func (c *OllamaClient) SupportsVision(model string) bool {
	m := c.model(model)
	for _, family := range ollamaVisionFamilies {
		if strings.HasPrefix(m, family) {
			return true
		}
	}
	return false
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict"`
	} `json:"options"`
}

type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// StreamCompletion streams a chat response as newline-delimited JSON.
func (c *OllamaClient) StreamCompletion(ctx context.Context, req Request, onChunk func(string) error) error {
	model := c.model(req.Model)

	var payload ollamaRequest
	payload.Model = model
	payload.Stream = true
	if req.SystemPrompt != "" {
		payload.Messages = append(payload.Messages, ollamaMessage{Role: "system", Content: req.SystemPrompt})
	}
	user := ollamaMessage{Role: "user", Content: req.Prompt}
	if req.Image != "" && c.SupportsVision(model) {
		_, data := splitDataURL(req.Image)
		user.Images = []string{data}
	}
	payload.Messages = append(payload.Messages, user)
	payload.Options.Temperature = req.Temperature
	payload.Options.NumPredict = req.MaxTokens
	if payload.Options.NumPredict <= 0 {
		payload.Options.NumPredict = DefaultMaxTokens
	}

	resp, err := postJSON(ctx, c.http, c.name, model, c.baseURL+"/api/chat", nil, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	err = readNDJSON(resp.Body, func(line []byte) error {
		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("decode chunk: %w", err)
		}
		if chunk.Error != "" {
			kind := KindUnknown
			if strings.Contains(chunk.Error, "not found") {
				kind = KindModelNotFound
			}
			return &Error{Kind: kind, Provider: c.name, Model: model, Message: chunk.Error}
		}
		return deliver(onChunk, chunk.Message.Content)
	})
	return finishStream(c.name, model, err)
}

// ListModels returns the names of locally installed models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(c.name, "", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, classifyHTTP(c.name, "", resp.StatusCode, resp.Header, string(data))
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
