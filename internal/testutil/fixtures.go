// Package testutil provides test helper utilities for hivecouncil tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/provider"
)

// TempProject creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
// The directory is automatically cleaned up when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// ConfigProject returns a project with a config file pointing at a local
// Ollama server and an OpenAI key.
func ConfigProject(ollamaURL string) map[string]string {
	return map[string]string{
		".hivecouncil/config.yaml": fmt.Sprintf(`version: 1
log:
  level: debug
  format: json
  journal: true
providers:
  openai:
    api_key: sk-test
  ollama:
    base_url: %s
`, ollamaURL),
	}
}

// Roster returns a council of the given providers; the first is the chair.
// Each member gets a distinct model "<provider>-model-<n>" so scripted
// providers can tell members apart.
func Roster(providers ...string) []council.Member {
	members := make([]council.Member, len(providers))
	for i, p := range providers {
		members[i] = council.Member{
			ID:        fmt.Sprintf("m%d", i+1),
			Provider:  p,
			Model:     fmt.Sprintf("%s-model-%d", p, i+1),
			Role:      fmt.Sprintf("Member %d", i+1),
			Archetype: council.DefaultArchetype,
			IsChair:   i == 0,
		}
	}
	return members
}

// CouncilConfig returns a valid configuration for members.
func CouncilConfig(prompt string, iterations int, members []council.Member) council.Config {
	return council.Config{
		Prompt:     prompt,
		Members:    members,
		Iterations: iterations,
		Template:   council.DefaultTemplate,
		Preset:     council.DefaultPreset,
	}
}

// Script controls how FakeProvider answers calls for one model.
type Script struct {
	Reply string
	Err   error
	Delay time.Duration
	// Respond, when set, overrides Reply and Err.
	Respond func(req provider.Request) (string, error)
}

// FakeProvider is a scripted provider.Provider that records every call.
type FakeProvider struct {
	name         string
	vision       bool
	defaultModel string

	mu      sync.Mutex
	scripts map[string]Script
	calls   []provider.Request
}

// NewFakeProvider returns a fake provider registered under name.
func NewFakeProvider(name string) *FakeProvider {
	return &FakeProvider{name: name, scripts: make(map[string]Script)}
}

// On scripts the answers for model.
func (f *FakeProvider) On(model string, s Script) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[model] = s
	return f
}

// WithVision makes every model report image support.
func (f *FakeProvider) WithVision() *FakeProvider {
	f.vision = true
	return f
}

// WithDefaultModel sets the model used for calls that name none.
func (f *FakeProvider) WithDefaultModel(model string) *FakeProvider {
	f.defaultModel = model
	return f
}

// Calls returns a copy of every request received.
func (f *FakeProvider) Calls() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.calls...)
}

// CallsFor counts requests made for model.
func (f *FakeProvider) CallsFor(model string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Model == model {
			n++
		}
	}
	return n
}

func (f *FakeProvider) Name() string { return f.name }

func (f *FakeProvider) CountTokens(text string) int { return provider.EstimateTokens(text) }

func (f *FakeProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	return float64(inputTokens+outputTokens) / 1e6
}

func (f *FakeProvider) SupportsVision(string) bool { return f.vision }

func (f *FakeProvider) ResolveModel(model string) string {
	if model == "" {
		return f.defaultModel
	}
	return model
}

// StreamCompletion answers from the model's script, emitting the reply word by word.
func (f *FakeProvider) StreamCompletion(ctx context.Context, req provider.Request, onChunk func(string) error) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	s, ok := f.scripts[req.Model]
	f.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	reply, err := s.Reply, s.Err
	if s.Respond != nil {
		reply, err = s.Respond(req)
	}
	if err != nil {
		return err
	}
	if !ok && reply == "" {
		reply = fmt.Sprintf("answer from %s", req.Model)
	}

	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		if err := onChunk(w); err != nil {
			return err
		}
	}
	return nil
}
