// catalog.go implements the listing commands: archetypes, templates and providers.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/provider"
	"github.com/hivecouncil/hivecouncil/internal/tui"
)

const localModelTimeout = 3 * time.Second

var archetypesCmd = &cobra.Command{
	Use:   "archetypes",
	Short: "List member personality archetypes",
	Long: `List the personality archetypes a council member can adopt, with
recommended models. With --local, models installed in Ollama are ranked
for each archetype.`,
	Args: cobra.NoArgs,
	RunE: runArchetypes,
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List merge templates and sampling presets",
	Args:  cobra.NoArgs,
	RunE:  runTemplates,
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List providers, their models and whether they are configured",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

var localFlag bool

func init() {
	archetypesCmd.Flags().BoolVar(&localFlag, "local", false, "Rank installed Ollama models for each archetype")
	archetypesCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of a table")
	templatesCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of text")
	providersCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of a table")
}

func runArchetypes(cmd *cobra.Command, args []string) error {
	var installed []string
	if localFlag {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		oc := cfg.Provider(provider.Ollama)
		ctx, cancel := context.WithTimeout(cmd.Context(), localModelTimeout)
		defer cancel()
		installed, err = provider.NewOllama(oc.BaseURL, oc.Model, localModelTimeout).ListModels(ctx)
		if err != nil {
			return fmt.Errorf("listing local models: %w", err)
		}
	}

	archetypes := council.Archetypes()
	out := cmd.OutOrStdout()
	if jsonFlag {
		return writeJSON(out, archetypes)
	}

	headers := []string{"ID", "NAME", "RECOMMENDED", "DESCRIPTION"}
	rows := make([][]string, 0, len(archetypes))
	for _, a := range archetypes {
		models := a.Recommended
		if len(installed) > 0 {
			models = council.Recommend(a.ID, installed, provider.ModelSuitability, 4)
		}
		rows = append(rows, []string{a.ID, a.Emoji + " " + a.Name, strings.Join(models, ", "), a.Description})
	}
	fmt.Fprintln(out, renderTable(headers, rows))
	return nil
}

func runTemplates(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ids := council.TemplateIDs()

	if jsonFlag {
		templates := make(map[string]string, len(ids))
		for _, id := range ids {
			templates[id], _ = council.MergeInstructions(id)
		}
		return writeJSON(out, map[string]any{"templates": templates, "presets": council.Presets()})
	}

	fmt.Fprintln(out, tui.TitleStyle.Render("Merge templates"))
	for _, id := range ids {
		instructions, _ := council.MergeInstructions(id)
		fmt.Fprintf(out, "\n%s\n%s\n", tui.HeaderStyle.Render(id), strings.TrimSpace(instructions))
	}

	fmt.Fprintf(out, "\n%s\n", tui.TitleStyle.Render("Presets"))
	rows := make([][]string, 0, 3)
	for _, p := range council.Presets() {
		rows = append(rows, []string{p.ID, fmt.Sprintf("%.1f", p.Temperature), p.Description})
	}
	fmt.Fprintln(out, renderTable([]string{"ID", "TEMPERATURE", "DESCRIPTION"}, rows))
	return nil
}

func runProviders(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	type listing struct {
		provider.Info
		Configured bool   `json:"configured"`
		Model      string `json:"model"`
	}

	var all []listing
	for _, name := range provider.CatalogNames() {
		info, _ := provider.Catalog(name)
		pc := cfg.Provider(name)
		l := listing{Info: info, Configured: info.IsLocal || pc.APIKey != "", Model: info.DefaultModel}
		if pc.Model != "" {
			l.Model = pc.Model
		}
		if pc.BaseURL != "" {
			l.BaseURL = pc.BaseURL
		}
		all = append(all, l)
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		return writeJSON(out, all)
	}

	rows := make([][]string, 0, len(all))
	for _, l := range all {
		state := tui.DimStyle.Render("no key (" + l.EnvKey + ")")
		if l.Configured {
			state = tui.SuccessStyle.Render("configured")
		}
		rows = append(rows, []string{l.Name, l.Model, state, l.BaseURL})
	}
	fmt.Fprintln(out, renderTable([]string{"PROVIDER", "MODEL", "STATUS", "ENDPOINT"}, rows))
	return nil
}
