// env.go applies .env files and environment variables on top of the YAML config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/subosito/gotenv"
)

// Environment variable names recognised by ApplyEnv.
const (
	EnvDatabase  = "HIVECOUNCIL_DB"
	EnvLogLevel  = "HIVECOUNCIL_LOG_LEVEL"
	EnvLogFormat = "HIVECOUNCIL_LOG_FORMAT"
	EnvAddr      = "HIVECOUNCIL_ADDR"
	EnvCORS      = "HIVECOUNCIL_CORS_ORIGINS"
)

// cloudProviders need an API key; ollama does not.
var cloudProviders = []string{"openai", "anthropic", "google", "grok"}

// LoadDotEnv loads <dir>/.env into the process environment if it exists.
// Variables already set in the environment win.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat .env: %w", err)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment values using the supplied lookup (os.Getenv in production).
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}

	for _, name := range append(append([]string{}, cloudProviders...), "ollama") {
		prefix := strings.ToUpper(name)
		p := c.Providers[name]
		if v := getenv(prefix + "_API_KEY"); v != "" {
			p.APIKey = v
		}
		if v := getenv(prefix + "_MODEL"); v != "" {
			p.Model = v
		}
		if v := getenv(prefix + "_BASE_URL"); v != "" {
			p.BaseURL = v
		}
		if v := getenv(prefix + "_REQUESTS_PER_MINUTE"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				p.RequestsPerMinute = n
			}
		}
		c.Providers[name] = p
	}

	if v := getenv(EnvDatabase); v != "" {
		c.Storage.Path = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := getenv(EnvCORS); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
	}
}

// Validate returns human-readable warnings about the configuration.
// None of them prevent startup.
func (c *Config) Validate() []string {
	var warnings []string

	configured := 0
	for _, name := range cloudProviders {
		if c.Provider(name).APIKey != "" {
			configured++
		}
	}
	if configured == 0 {
		warnings = append(warnings, "no cloud provider API keys configured; only ollama is available")
	}

	if key := c.Provider("openai").APIKey; key != "" && !strings.HasPrefix(key, "sk-") {
		warnings = append(warnings, "OPENAI_API_KEY does not start with 'sk-'")
	}
	if key := c.Provider("anthropic").APIKey; key != "" && !strings.HasPrefix(key, "sk-ant-") {
		warnings = append(warnings, "ANTHROPIC_API_KEY does not start with 'sk-ant-'")
	}

	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" {
			warnings = append(warnings, "CORS allows every origin")
			break
		}
	}

	if c.Defaults.Iterations < 1 || c.Defaults.Iterations > 10 {
		warnings = append(warnings, fmt.Sprintf("defaults.iterations %d is outside 1..10", c.Defaults.Iterations))
	}

	return warnings
}
