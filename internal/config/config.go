// Package config handles reading and writing .hivecouncil/config.yaml and
// applying environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for .hivecouncil/config.yaml.
type Config struct {
	Version   int                       `yaml:"version"`
	Server    ServerConfig              `yaml:"server"`
	Storage   StorageConfig             `yaml:"storage"`
	Log       LogConfig                 `yaml:"log"`
	Defaults  DefaultsConfig            `yaml:"defaults"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path       string `yaml:"path"`         // relative paths resolve against the project root
	MaxAgeDays int    `yaml:"max_age_days"` // "hivecouncil clean" removes sessions older than this
}

// LogConfig controls process logging and the event journal.
type LogConfig struct {
	Level   string `yaml:"level"`  // debug | info | warn | error
	Format  string `yaml:"format"` // console | json
	Journal bool   `yaml:"journal"`
}

// DefaultsConfig fills session fields a caller omits.
type DefaultsConfig struct {
	Chair           string `yaml:"chair"`
	Iterations      int    `yaml:"iterations"`
	Template        string `yaml:"template"`
	Preset          string `yaml:"preset"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// ProviderConfig holds the credentials and endpoint for one provider.
type ProviderConfig struct {
	APIKey            string `yaml:"api_key,omitempty"`
	BaseURL           string `yaml:"base_url,omitempty"`
	Model             string `yaml:"model,omitempty"`
	RequestsPerMinute int    `yaml:"requests_per_minute,omitempty"` // 0 disables limiting
	TimeoutSeconds    int    `yaml:"timeout_seconds,omitempty"`
}

const configDir = ".hivecouncil"
const configFile = "config.yaml"

// Dir returns the .hivecouncil directory inside a project root.
func Dir(root string) string {
	return filepath.Join(root, configDir)
}

// ReadConfig reads .hivecouncil/config.yaml from the given project directory.
// dir is the project root (not .hivecouncil/ itself).
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// WriteConfig writes cfg to .hivecouncil/config.yaml in the given project directory.
// Creates the .hivecouncil/ directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Load reads the project config, falling back to defaults when the file is
// missing, then applies .env and process environment overrides.
func Load(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	}

	if err := LoadDotEnv(dir); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	return cfg, nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Addr:        ":8000",
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Storage: StorageConfig{
			Path:       filepath.Join(configDir, "hivecouncil.db"),
			MaxAgeDays: 30,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Journal: true,
		},
		Defaults: DefaultsConfig{
			Chair:           "anthropic",
			Iterations:      3,
			Template:        "balanced",
			Preset:          "balanced",
			MaxOutputTokens: 4000,
		},
		Providers: map[string]ProviderConfig{
			"openai":    {TimeoutSeconds: 120},
			"anthropic": {TimeoutSeconds: 120},
			"google":    {TimeoutSeconds: 120},
			"grok":      {BaseURL: "https://api.x.ai/v1", TimeoutSeconds: 120},
			"ollama":    {BaseURL: "http://localhost:11434", TimeoutSeconds: 300},
		},
	}
}

// Provider returns the named provider's settings (zero value if absent).
func (c *Config) Provider(name string) ProviderConfig {
	if c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[name]
}

// ProviderNames returns configured provider names, sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DatabasePath resolves the storage path against the project root.
func (c *Config) DatabasePath(root string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(root, c.Storage.Path)
}
