// Package cli defines Cobra command definitions for the hivecouncil CLI.
// This file contains the root command, persistent flags, and Execute.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hivecouncil/hivecouncil/internal/api"
)

var (
	projectDir string
	verbose    bool
	version    = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "hivecouncil",
	Short: "Run a council of language models over one prompt",
	Long: `hivecouncil sends a prompt to a council of models in parallel, has a
chair model merge their answers, then feeds the merge back to the council
for further rounds of critique and refinement.

Use "hivecouncil serve" for the HTTP API or "hivecouncil run" to drive a
session from the terminal.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	api.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Verbose returns true if --verbose flag is set.
func Verbose() bool {
	return verbose
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", "", "Project root holding .hivecouncil/ (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Print every council response and debug logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(archetypesCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(configCmd)
}
