package provider

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivecouncil/hivecouncil/internal/config"
)

// Registry resolves configured providers by name. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under its Name().
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Resolve returns the named provider, or false if it is not configured.
func (r *Registry) Resolve(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds a registry from configuration. Cloud providers are only
// registered when an API key is present; Ollama is always registered.
func FromConfig(cfg *config.Config, logger zerolog.Logger) *Registry {
	r := NewRegistry()

	build := map[string]func(config.ProviderConfig, time.Duration) Provider{
		OpenAI: func(p config.ProviderConfig, t time.Duration) Provider {
			return NewOpenAI(p.APIKey, p.BaseURL, p.Model, t)
		},
		Anthropic: func(p config.ProviderConfig, t time.Duration) Provider {
			return NewAnthropic(p.APIKey, p.BaseURL, p.Model, t)
		},
		Google: func(p config.ProviderConfig, t time.Duration) Provider {
			return NewGoogle(p.APIKey, p.BaseURL, p.Model, t)
		},
		Grok: func(p config.ProviderConfig, t time.Duration) Provider {
			return NewGrok(p.APIKey, p.BaseURL, p.Model, t)
		},
	}

	for _, name := range []string{OpenAI, Anthropic, Google, Grok} {
		pc := cfg.Provider(name)
		if pc.APIKey == "" {
			logger.Debug().Str("provider", name).Msg("provider skipped: no api key")
			continue
		}
		p := build[name](pc, time.Duration(pc.TimeoutSeconds)*time.Second)
		r.Register(WithRateLimit(p, pc.RequestsPerMinute))
		logger.Info().Str("provider", name).Int("rpm", pc.RequestsPerMinute).Msg("provider registered")
	}

	oc := cfg.Provider(Ollama)
	r.Register(WithRateLimit(NewOllama(oc.BaseURL, oc.Model, time.Duration(oc.TimeoutSeconds)*time.Second), oc.RequestsPerMinute))
	logger.Info().Str("provider", Ollama).Str("base_url", oc.BaseURL).Msg("provider registered")

	return r
}
