// env.go opens the configuration, store, providers and engine shared by
// the commands that touch sessions.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/hivecouncil/hivecouncil/internal/config"
	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/log"
	"github.com/hivecouncil/hivecouncil/internal/observability"
	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
	"github.com/hivecouncil/hivecouncil/internal/provider"
	"github.com/hivecouncil/hivecouncil/internal/session"
)

const appName = "hivecouncil"

// projectRoot resolves --dir, defaulting to the working directory.
func projectRoot() (string, error) {
	if projectDir != "" {
		abs, err := filepath.Abs(projectDir)
		if err != nil {
			return "", fmt.Errorf("resolving --dir: %w", err)
		}
		return abs, nil
	}
	root, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return root, nil
}

// loadConfig reads the project config with .env and environment overrides.
func loadConfig() (string, *config.Config, error) {
	root, err := projectRoot()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// appEnv is everything a session command needs.
type appEnv struct {
	root     string
	cfg      *config.Config
	logger   zerolog.Logger
	store    *session.Store
	registry *provider.Registry
	journal  *log.Logger
}

// openEnv loads configuration and opens the store. Process logs go to
// logOut; pass io.Discard while a full-screen view owns the terminal.
func openEnv(logOut io.Writer) (*appEnv, error) {
	root, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger := observability.InitLogger(appName, level, cfg.Log.Format, logOut)

	store, err := session.NewStore(cfg.DatabasePath(root))
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	e := &appEnv{
		root:   root,
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
	if cfg.Log.Journal {
		journal, err := log.NewLogger(config.Dir(root))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		e.journal = journal
	}
	return e, nil
}

// openStore opens only the session store, for read-only commands.
func openStore() (*session.Store, error) {
	root, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(cfg.DatabasePath(root))
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return store, nil
}

// Close releases the store.
func (e *appEnv) Close() error {
	return e.store.Close()
}

// providers builds the registry on first use.
func (e *appEnv) providers() *provider.Registry {
	if e.registry == nil {
		e.registry = provider.FromConfig(e.cfg, e.logger)
	}
	return e.registry
}

// engine builds the orchestrator over the store and providers.
func (e *appEnv) engine() *orchestrator.Orchestrator {
	opts := []orchestrator.Option{
		orchestrator.WithLogger(e.logger),
		orchestrator.WithMaxTokens(e.cfg.Defaults.MaxOutputTokens),
	}
	if e.journal != nil {
		opts = append(opts, orchestrator.WithJournal(e.journal))
	}
	return orchestrator.New(e.store, e.providers(), opts...)
}

// defaults maps the config defaults onto session defaults.
func (e *appEnv) defaults() council.Defaults {
	return sessionDefaults(e.cfg)
}

func sessionDefaults(cfg *config.Config) council.Defaults {
	return council.Defaults{
		Chair:      cfg.Defaults.Chair,
		Iterations: cfg.Defaults.Iterations,
		Template:   cfg.Defaults.Template,
		Preset:     cfg.Defaults.Preset,
	}
}
