package cmd

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/conductor/cli"
	"github.com/grovetools/conductor/config"
	"github.com/grovetools/conductor/errors"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd(), newConfigSchemaCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				// Round-trip through YAML so keys match the file format.
				raw, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				var tree map[string]interface{}
				if err := yaml.Unmarshal(raw, &tree); err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				return cli.PrintJSON(cmd, tree)
			}

			var data []byte
			switch config.Format(format) {
			case config.FormatYAML:
				data, err = yaml.Marshal(cfg)
			case config.FormatTOML:
				data, err = toml.Marshal(cfg)
			default:
				return errors.InvalidInput("format must be 'yaml' or 'toml'").WithDetail("format", format)
			}
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			out := cmd.OutOrStdout()
			if path != "" {
				fmt.Fprintf(out, "# Source: %s\n", path)
			} else {
				fmt.Fprintln(out, "# Source: built-in defaults")
			}
			fmt.Fprint(out, string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or toml")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file against the schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cli.GetOptions(cmd).ConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to get current directory: %w", err)
				}
				if path, err = config.FindConfigFile(cwd); err != nil {
					return err
				}
			}

			if err := cli.ValidateConfigFile(path); err != nil {
				return err
			}
			// Schema-valid files can still carry bad durations or orders.
			if _, err := config.Load(path); err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return cli.PrintJSON(cmd, map[string]interface{}{"path": path, "valid": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", cli.DefaultTheme.Success.Render("✓"), path)
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema for configuration files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
