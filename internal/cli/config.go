// config.go implements "hivecouncil config init" and "hivecouncil config show".
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hivecouncil/hivecouncil/internal/config"
	"github.com/hivecouncil/hivecouncil/internal/tui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or inspect .hivecouncil/config.yaml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config to .hivecouncil/config.yaml",
	Long: `Write a default config to .hivecouncil/config.yaml. API keys are best
kept in the environment or a .env file next to .hivecouncil/.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config with API keys redacted",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var forceFlag bool

func init() {
	configInitCmd.Flags().BoolVar(&forceFlag, "force", false, "Overwrite an existing config")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	path := filepath.Join(config.Dir(root), "config.yaml")
	if _, err := os.Stat(path); err == nil && !forceFlag {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	if err := config.WriteConfig(root, config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(redacted(cfg))
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(data))
	for _, w := range cfg.Validate() {
		fmt.Fprintln(out, tui.WarningStyle.Render("warning: "+w))
	}
	return nil
}

// redacted copies cfg with every API key masked.
func redacted(cfg *config.Config) *config.Config {
	c := *cfg
	c.Providers = make(map[string]config.ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		if p.APIKey != "" {
			p.APIKey = maskKey(p.APIKey)
		}
		c.Providers[name] = p
	}
	return &c
}

// maskKey keeps the first four characters of a key.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****"
}
