package council

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Prompt:     "Write a haiku about Go",
		Iterations: 2,
		Template:   "balanced",
		Preset:     "precise",
		Members: []Member{
			{ID: "m1", Provider: "openai", Model: "gpt-4o", Role: "Writer", Archetype: "creative", IsChair: true},
			{ID: "m2", Provider: "anthropic", Model: "claude-sonnet-4-20250514", Role: "Editor", Archetype: "critic"},
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty prompt", func(c *Config) { c.Prompt = "   " }, "prompt"},
		{"prompt too long", func(c *Config) { c.Prompt = strings.Repeat("a", MaxPromptLength+1) }, "prompt"},
		{"zero iterations", func(c *Config) { c.Iterations = 0 }, "iterations"},
		{"too many iterations", func(c *Config) { c.Iterations = 11 }, "iterations"},
		{"no members", func(c *Config) { c.Members = nil }, "members"},
		{"no chair", func(c *Config) { c.Members[0].IsChair = false }, "chair"},
		{"two chairs", func(c *Config) { c.Members[1].IsChair = true }, "chair"},
		{"duplicate id", func(c *Config) { c.Members[1].ID = "m1" }, "duplicate"},
		{"unknown archetype", func(c *Config) { c.Members[1].Archetype = "wizard" }, "archetype"},
		{"unknown template", func(c *Config) { c.Template = "poetic" }, "template"},
		{"unknown preset", func(c *Config) { c.Preset = "wild" }, "preset"},
		{"oversized file", func(c *Config) {
			c.Files = []Attachment{{Filename: "big.pdf", Size: MaxAttachmentSize + 1}}
		}, "big.pdf"},
		{"resume beyond iterations", func(c *Config) {
			c.ResumeState = &ResumeState{CurrentIteration: 3}
		}, "resume"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestApplyDefaultsExpandsLegacyProviders(t *testing.T) {
	cfg := Config{
		Prompt:            "hello",
		SelectedProviders: []string{"openai", "anthropic", "ollama"},
		Chair:             "anthropic",
	}
	cfg.ApplyDefaults(Defaults{Iterations: 3, Template: "balanced", Preset: "balanced"})

	if len(cfg.Members) != 3 {
		t.Fatalf("len(Members) = %d, want 3", len(cfg.Members))
	}
	chair, ok := Chair(cfg.Members)
	if !ok || chair.Provider != "anthropic" {
		t.Errorf("chair provider = %q, want %q", chair.Provider, "anthropic")
	}
	if cfg.Iterations != 3 || cfg.Template != "balanced" || cfg.Preset != "balanced" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	for _, m := range cfg.Members {
		if m.Archetype != DefaultArchetype {
			t.Errorf("member %s archetype = %q, want %q", m.ID, m.Archetype, DefaultArchetype)
		}
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after defaults = %v", err)
	}
}

func TestChairFallsBackToFirstMember(t *testing.T) {
	members := []Member{{ID: "a", Provider: "openai"}, {ID: "b", Provider: "google"}}
	chair, ok := Chair(members)
	if !ok || chair.ID != "a" {
		t.Errorf("Chair() = %q, %v; want %q, true", chair.ID, ok, "a")
	}
	if _, ok := Chair(nil); ok {
		t.Error("Chair(nil) ok = true, want false")
	}
}

func TestFileContextAndFirstImage(t *testing.T) {
	files := []Attachment{
		{Filename: "notes.txt", ExtractedText: "alpha"},
		{Filename: "photo.png", Base64Data: "AAAA"},
		{Filename: "spec.md", ExtractedText: "beta"},
		{Filename: "second.png", Base64Data: "BBBB"},
	}

	got := FileContext(files)
	want := "=== File: notes.txt ===\nalpha\n\n=== File: spec.md ===\nbeta"
	if got != want {
		t.Errorf("FileContext() = %q, want %q", got, want)
	}
	if img := FirstImage(files); img != "AAAA" {
		t.Errorf("FirstImage() = %q, want %q", img, "AAAA")
	}
	if FileContext(nil) != "" {
		t.Error("FileContext(nil) should be empty")
	}
}
