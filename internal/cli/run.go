// run.go implements the "hivecouncil run" command which creates a session
// and drives it to completion in the terminal.
package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
	"github.com/hivecouncil/hivecouncil/internal/session"
	"github.com/hivecouncil/hivecouncil/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run a council session in the terminal",
	Long: `Create a council session and run it to completion, showing live
progress. The roster comes from --config (a JSON or YAML session config),
--council (a saved council template), or --providers and --chair.

Pass "-" as the prompt to read it from stdin. Interrupting the run pauses
the session; continue it with "hivecouncil resume <id>".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

// runFlags holds the command-line overrides for a session config.
type runFlags struct {
	configFile   string
	councilID    string
	providers    []string
	chair        string
	iterations   int
	template     string
	preset       string
	systemPrompt string
	files        []string
	autopilot    bool
}

var runOpts runFlags

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.configFile, "config", "", "Session config file (.json, .yaml or .yml)")
	f.StringVar(&runOpts.councilID, "council", "", "Saved council template id to take the roster from")
	f.StringSliceVar(&runOpts.providers, "providers", nil, "Providers to seat, one member each (e.g. openai,anthropic)")
	f.StringVar(&runOpts.chair, "chair", "", "Provider of the chair when using --providers")
	f.IntVarP(&runOpts.iterations, "iterations", "n", 0, "Number of iterations (1-10)")
	f.StringVar(&runOpts.template, "template", "", "Merge template: analytical, creative, technical, balanced")
	f.StringVar(&runOpts.preset, "preset", "", "Sampling preset: creative, balanced, precise")
	f.StringVar(&runOpts.systemPrompt, "system-prompt", "", "System prompt for every member, replacing personalities")
	f.StringSliceVarP(&runOpts.files, "file", "f", nil, "Attach a file (repeatable); images are sent to vision models")
	f.BoolVar(&runOpts.autopilot, "autopilot", false, "Mark the session as autopilot")
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := openEnv(viewLogOutput())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompt := ""
	if len(args) > 0 {
		prompt = args[0]
	}
	if prompt == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading prompt from stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}

	cfg, err := buildConfig(ctx, e.store, runOpts, prompt)
	if err != nil {
		return err
	}
	cfg.ApplyDefaults(e.defaults())
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, m := range cfg.Members {
		if _, ok := e.providers().Resolve(m.Provider); !ok {
			e.logger.Warn().Str("member", m.DisplayName()).Str("provider", m.Provider).Msg("provider not configured; member will fail")
		}
	}

	engine := e.engine()
	run, err := engine.CreateSession(ctx, cfg)
	if err != nil {
		return err
	}

	return tui.Watch(ctx, runInfo(run), func(ctx context.Context, emit orchestrator.EmitFunc) error {
		return engine.RunSession(ctx, run, emit)
	}, cmd.OutOrStdout(), verbose)
}

// viewLogOutput keeps process logs off the terminal while the live view owns it.
func viewLogOutput() io.Writer {
	if tui.IsTTY() && !verbose {
		return io.Discard
	}
	return os.Stderr
}

func runInfo(c *orchestrator.Council) tui.RunInfo {
	return tui.RunInfo{
		SessionID:  c.Session.ID,
		Prompt:     c.Session.Prompt,
		Iterations: c.Session.TotalIterations,
		Members:    c.Members(),
		Chair:      c.Chair(),
	}
}

// templateLister reads saved council templates. *session.Store implements it.
type templateLister interface {
	ListTemplates(ctx context.Context) ([]session.CouncilTemplate, error)
}

// buildConfig layers the config file, the saved council template and the
// flags, in that order. Defaults are applied by the caller.
func buildConfig(ctx context.Context, templates templateLister, opts runFlags, prompt string) (council.Config, error) {
	var cfg council.Config
	if opts.configFile != "" {
		loaded, err := readSessionConfig(opts.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if opts.councilID != "" {
		t, err := findTemplate(ctx, templates, opts.councilID)
		if err != nil {
			return cfg, err
		}
		cfg.Members = t.Members
		cfg.Iterations = t.Iterations
		cfg.Template = t.Template
		cfg.Preset = t.Preset
	}

	if len(opts.providers) > 0 {
		cfg.Members = nil
		cfg.SelectedProviders = opts.providers
		cfg.Chair = opts.chair
	}
	if prompt != "" {
		cfg.Prompt = prompt
	}
	if opts.iterations > 0 {
		cfg.Iterations = opts.iterations
	}
	if opts.template != "" {
		cfg.Template = opts.template
	}
	if opts.preset != "" {
		cfg.Preset = opts.preset
	}
	if opts.systemPrompt != "" {
		cfg.SystemPrompt = opts.systemPrompt
	}
	if opts.autopilot {
		cfg.Autopilot = true
	}

	for _, path := range opts.files {
		a, err := readAttachment(path)
		if err != nil {
			return cfg, err
		}
		cfg.Files = append(cfg.Files, a)
	}

	if len(cfg.Members) == 0 && len(cfg.SelectedProviders) == 0 {
		return cfg, errors.New("no council: use --config, --council or --providers")
	}
	return cfg, nil
}

func findTemplate(ctx context.Context, templates templateLister, id string) (session.CouncilTemplate, error) {
	all, err := templates.ListTemplates(ctx)
	if err != nil {
		return session.CouncilTemplate{}, fmt.Errorf("listing council templates: %w", err)
	}
	for _, t := range all {
		if t.ID == id || t.Name == id {
			return t, nil
		}
	}
	return session.CouncilTemplate{}, fmt.Errorf("council template %q not found", id)
}

// readSessionConfig loads a session config from JSON or YAML. YAML keys
// are the JSON field names.
func readSessionConfig(path string) (council.Config, error) {
	var cfg council.Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading session config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cfg, fmt.Errorf("parsing session config: %w", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return cfg, fmt.Errorf("converting session config: %w", err)
		}
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing session config: %w", err)
	}
	return cfg, nil
}

// readAttachment loads a file for the council. Images are sent as base64;
// anything else is passed as text.
func readAttachment(path string) (council.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return council.Attachment{}, fmt.Errorf("reading attachment: %w", err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "text/plain"
	}

	a := council.Attachment{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Size:        int64(len(data)),
	}
	if strings.HasPrefix(contentType, "image/") {
		a.Base64Data = base64.StdEncoding.EncodeToString(data)
	} else {
		a.ExtractedText = string(data)
	}
	return a, nil
}
