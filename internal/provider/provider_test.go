package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivecouncil/hivecouncil/internal/config"
)

func collect(t *testing.T, p Provider, req Request) (string, error) {
	t.Helper()
	var b strings.Builder
	err := p.StreamCompletion(context.Background(), req, func(s string) error {
		b.WriteString(s)
		return nil
	})
	return b.String(), err
}

func TestOpenAIStreamCompletion(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", srv.URL, "", time.Second)
	text, err := collect(t, c, Request{Model: "gpt-4o-mini", Prompt: "hi", SystemPrompt: "be nice", Temperature: 0.3, Image: "AAAA"})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if text != "Hello" {
		t.Errorf("text = %q, want %q", text, "Hello")
	}
	if got["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", got["model"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	user, _ := msgs[1].(map[string]any)
	if _, isList := user["content"].([]any); !isList {
		t.Errorf("vision model should receive multipart content, got %T", user["content"])
	}
}

func TestOpenAIOmitsImageForTextModels(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", srv.URL, "", time.Second)
	if _, err := collect(t, c, Request{Model: "gpt-3.5-turbo", Prompt: "hi", Image: "AAAA"}); err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	msgs, _ := got["messages"].([]any)
	user, _ := msgs[len(msgs)-1].(map[string]any)
	if s, ok := user["content"].(string); !ok || s != "hi" {
		t.Errorf("content = %v, want plain prompt", user["content"])
	}
}

func TestAnthropicStreamCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-ant-test" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic headers: %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"system":"judge"`) {
			t.Errorf("system prompt not sent: %s", body)
		}
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Good \"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"day\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	c := NewAnthropic("sk-ant-test", srv.URL, "", time.Second)
	text, err := collect(t, c, Request{Prompt: "hi", SystemPrompt: "judge"})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if text != "Good day" {
		t.Errorf("text = %q, want %q", text, "Good day")
	}
}

func TestAnthropicStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	c := NewAnthropic("k", srv.URL, "", time.Second)
	_, err := collect(t, c, Request{Prompt: "hi"})
	if !IsKind(err, KindServiceUnavailable) {
		t.Errorf("err = %v, want service_unavailable", err)
	}
}

func TestGoogleStreamCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-1.5-pro:streamGenerateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q, want sse", r.URL.Query().Get("alt"))
		}
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Bonjour\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"!\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	}))
	defer srv.Close()

	c := NewGoogle("g-key", srv.URL, "", time.Second)
	text, err := collect(t, c, Request{Model: "gemini-1.5-pro", Prompt: "hi"})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if text != "Bonjour!" {
		t.Errorf("text = %q, want %q", text, "Bonjour!")
	}
}

func TestGoogleSafetyBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"promptFeedback\":{\"blockReason\":\"SAFETY\"}}\n\n")
	}))
	defer srv.Close()

	_, err := collect(t, NewGoogle("k", srv.URL, "", time.Second), Request{Prompt: "hi"})
	if !IsKind(err, KindContentFiltered) {
		t.Errorf("err = %v, want content_filtered", err)
	}
}

func TestOllamaStreamAndListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			fmt.Fprintln(w, `{"message":{"content":"lo"},"done":false}`)
			fmt.Fprintln(w, `{"message":{"content":"cal"},"done":false}`)
			fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"llama3.3:latest"},{"name":"llava"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOllama(srv.URL, "", time.Second)
	text, err := collect(t, c, Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if text != "local" {
		t.Errorf("text = %q, want %q", text, "local")
	}

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if strings.Join(models, ",") != "llama3.3:latest,llava" {
		t.Errorf("models = %v", models)
	}
	if !c.SupportsVision("llava") || c.SupportsVision("") {
		t.Error("vision detection wrong for ollama models")
	}
}

func TestResolveModelUsesConfiguredDefault(t *testing.T) {
	c := NewOllama("http://localhost:11434", "llama3", time.Second)
	if got := c.ResolveModel(""); got != "llama3" {
		t.Errorf("ResolveModel(\"\") = %q, want %q", got, "llama3")
	}
	if got := c.ResolveModel("phi3:mini"); got != "phi3:mini" {
		t.Errorf("ResolveModel(phi3:mini) = %q", got)
	}
	if got := WithRateLimit(c, 10).ResolveModel(""); got != "llama3" {
		t.Errorf("rate-limited ResolveModel(\"\") = %q, want %q", got, "llama3")
	}
}

func TestHTTPErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		header string
		body   string
		want   Kind
	}{
		{429, "7", `{"error":"slow down"}`, KindRateLimited},
		{429, "", `{"error":{"code":"insufficient_quota"}}`, KindQuotaExhausted},
		{401, "", "bad key", KindAuthFailed},
		{404, "", "no such model", KindModelNotFound},
		{400, "", "This model's maximum context length is 8192 tokens", KindContextTooLong},
		{400, "", "blocked by content_filter", KindContentFiltered},
		{503, "", "down", KindServiceUnavailable},
		{529, "", "overloaded", KindServiceUnavailable},
		{504, "", "", KindTimeout},
		{418, "", "teapot", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", tt.status, tt.want), func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			e := classifyHTTP("openai", "gpt-4o", tt.status, h, tt.body)
			if e.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", e.Kind, tt.want)
			}
			if tt.header == "7" && e.RetryAfter != 7*time.Second {
				t.Errorf("RetryAfter = %v, want 7s", e.RetryAfter)
			}
		})
	}
}

func TestNonSuccessStatusReturnsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := collect(t, NewOpenAI("sk-bad", srv.URL, "", time.Second), Request{Prompt: "hi"})
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if pe.Kind != KindAuthFailed || pe.Provider != OpenAI || pe.Model != "gpt-4o" {
		t.Errorf("error = %+v", pe)
	}
}

func TestChunkHandlerErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
	}))
	defer srv.Close()

	stop := errors.New("stop")
	err := NewOpenAI("k", srv.URL, "", time.Second).StreamCompletion(context.Background(), Request{Prompt: "hi"}, func(string) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want handler error", err)
	}
}

func TestEstimateCostAndTokens(t *testing.T) {
	if got := EstimateTokens(strings.Repeat("a", 41)); got != 10 {
		t.Errorf("EstimateTokens = %d, want 10", got)
	}
	if got := EstimateCost(OpenAI, "gpt-4o", 1000, 500); got != 7.5 {
		t.Errorf("gpt-4o cost = %v, want 7.5", got)
	}
	if got := EstimateCost(Anthropic, "claude-unknown", 1000, 1000); got != 18 {
		t.Errorf("anthropic fallback cost = %v, want 18", got)
	}
	if got := EstimateCost(Ollama, "llama3.3", 5000, 5000); got != 0 {
		t.Errorf("ollama cost = %v, want 0", got)
	}
	if got := EstimateCost(Google, "gemini-1.5-flash", 1, 1); got != 0.000375 {
		t.Errorf("rounded cost = %v, want 0.000375", got)
	}
}

func TestFromConfigRegistersKeyedProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers[OpenAI] = config.ProviderConfig{APIKey: "sk-x", RequestsPerMinute: 60}
	r := FromConfig(cfg, zerolog.Nop())

	if got := strings.Join(r.Names(), ","); got != "ollama,openai" {
		t.Errorf("Names() = %q, want %q", got, "ollama,openai")
	}
	p, ok := r.Resolve(OpenAI)
	if !ok {
		t.Fatal("openai not resolved")
	}
	if _, isLimited := p.(*limited); !isLimited {
		t.Errorf("openai provider = %T, want rate limited wrapper", p)
	}
	if _, ok := Underlying(p).(*OpenAIClient); !ok {
		t.Errorf("Underlying = %T, want *OpenAIClient", Underlying(p))
	}
	if _, ok := r.Resolve(Anthropic); ok {
		t.Error("anthropic resolved without an api key")
	}
}

func TestRateLimitHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := WithRateLimit(NewOpenAI("k", srv.URL, "", time.Second), 1)
	if _, err := collect(t, p, Request{Prompt: "first"}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.StreamCompletion(ctx, Request{Prompt: "second"}, func(string) error { return nil })
	if err == nil {
		t.Fatal("second call within the same minute should wait and be cancelled")
	}
}
