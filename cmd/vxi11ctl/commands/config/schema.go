package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/marmos91/vxi11/pkg/config"
)

func newSchemaCmd() *cobra.Command {
	var schemaOutput string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Generate JSON schema for configuration",
		Long: `Generate a JSON schema for the vxi11ctl configuration file.

The schema can be used for IDE autocompletion and validation of the YAML file.

Examples:
  # Print schema to stdout
  vxi11ctl config schema

  # Save schema to file
  vxi11ctl config schema --file config.schema.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaJSON, err := GenerateSchema()
			if err != nil {
				return err
			}

			if schemaOutput != "" {
				if err := os.WriteFile(schemaOutput, schemaJSON, 0644); err != nil {
					return fmt.Errorf("failed to write schema file: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaOutput)
				return nil
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schemaJSON))
			return err
		},
	}

	// -o is taken by the global --output flag.
	cmd.Flags().StringVarP(&schemaOutput, "file", "f", "", "Output file (default: stdout)")
	return cmd
}

// GenerateSchema reflects config.Config into an indented JSON schema keyed
// by the YAML field names.
func GenerateSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "vxi11ctl Configuration"
	schema.Description = "Configuration schema for the vxi11ctl VXI-11 client"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}
	return data, nil
}
