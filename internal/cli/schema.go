// schema.go implements the "hivecouncil schema" command which prints the
// JSON Schema of a session config.
package cli

import (
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/hivecouncil/hivecouncil/internal/council"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of a session config",
	Long: `Print the JSON Schema accepted by "hivecouncil run --config" and by the
session endpoints of the HTTP API.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeJSON(cmd.OutOrStdout(), sessionSchema())
	},
}

func sessionSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	s := r.Reflect(&council.Config{})
	s.Title = "HiveCouncil session config"
	return s
}
