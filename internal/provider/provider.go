// Package provider implements the streaming-completion capability for each
// supported LLM vendor and the registry that resolves them by name.
package provider

import (
	"context"
	"math"
	"strings"
)

// Provider names.
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Google    = "google"
	Grok      = "grok"
	Ollama    = "ollama"
)

// DefaultMaxTokens caps each completion when the caller does not.
const DefaultMaxTokens = 4000

// Request is one completion call. The model travels with the call so a
// single provider instance can serve members using different models.
type Request struct {
	Model        string
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Image        string // base64 payload, only sent when the model supports vision
}

// Provider is the narrow capability the orchestrator needs from a vendor.
type Provider interface {
	Name() string
	// StreamCompletion calls onChunk for each text fragment in arrival order.
	// Returning an error from onChunk aborts the stream with that error.
	StreamCompletion(ctx context.Context, req Request, onChunk func(string) error) error
	CountTokens(text string) int
	EstimateCost(model string, inputTokens, outputTokens int) float64
	SupportsVision(model string) bool
	// ResolveModel returns the model a call for model will use: model
	// itself, or the provider's configured default when model is blank.
	ResolveModel(model string) string
}

// Info describes a provider for listings.
type Info struct {
	Name            string   `json:"name"`
	DefaultModel    string   `json:"default_model"`
	AvailableModels []string `json:"available_models"`
	EnvKey          string   `json:"env_key,omitempty"`
	BaseURL         string   `json:"base_url,omitempty"`
	IsLocal         bool     `json:"is_local,omitempty"`
}

var catalog = map[string]Info{
	OpenAI: {
		Name:            OpenAI,
		DefaultModel:    "gpt-4o",
		AvailableModels: []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo"},
		EnvKey:          "OPENAI_API_KEY",
		BaseURL:         "https://api.openai.com/v1",
	},
	Anthropic: {
		Name:         Anthropic,
		DefaultModel: "claude-sonnet-4-20250514",
		AvailableModels: []string{
			"claude-opus-4-20250514",
			"claude-sonnet-4-20250514",
			"claude-sonnet-3-5-20241022",
			"claude-sonnet-3-5-20240620",
			"claude-haiku-3-5-20241022",
		},
		EnvKey:  "ANTHROPIC_API_KEY",
		BaseURL: "https://api.anthropic.com/v1",
	},
	Google: {
		Name:            Google,
		DefaultModel:    "gemini-2.0-flash-exp",
		AvailableModels: []string{"gemini-2.0-flash-exp", "gemini-1.5-pro", "gemini-1.5-flash", "gemini-pro"},
		EnvKey:          "GOOGLE_API_KEY",
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
	},
	Grok: {
		Name:            Grok,
		DefaultModel:    "grok-beta",
		AvailableModels: []string{"grok-beta", "grok-vision-beta"},
		EnvKey:          "GROK_API_KEY",
		BaseURL:         "https://api.x.ai/v1",
	},
	Ollama: {
		Name:         Ollama,
		DefaultModel: "phi3:mini",
		AvailableModels: []string{
			"phi3:mini", "llama3.1", "llama3.1:70b", "llama3", "mistral", "mistral-nemo",
			"phi3", "phi3:medium", "gemma2", "gemma2:27b", "qwen2", "qwen2:7b",
			"codellama", "llava", "llava-phi3",
		},
		BaseURL: "http://localhost:11434",
		IsLocal: true,
	},
}

// catalogOrder is the listing order of the catalog.
var catalogOrder = []string{OpenAI, Anthropic, Google, Grok, Ollama}

// CatalogNames returns every known provider name in listing order.
func CatalogNames() []string {
	return append([]string(nil), catalogOrder...)
}

// Catalog returns the static description of a provider.
func Catalog(name string) (Info, bool) {
	info, ok := catalog[name]
	return info, ok
}

// EstimateTokens approximates a token count as one token per four characters.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// roundCost rounds a USD amount to six decimals.
func roundCost(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// base carries the parts shared by every HTTP provider.
type base struct {
	name         string
	defaultModel string
}

func (b base) Name() string { return b.name }

func (b base) CountTokens(text string) int { return EstimateTokens(text) }

func (b base) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	return EstimateCost(b.name, b.model(model), inputTokens, outputTokens)
}

func (b base) ResolveModel(m string) string { return b.model(m) }

func (b base) model(m string) string {
	if strings.TrimSpace(m) != "" {
		return m
	}
	return b.defaultModel
}
