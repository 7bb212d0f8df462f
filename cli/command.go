package cli

import (
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/conductor/config"
	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/logging"
	"github.com/grovetools/conductor/schema"
)

// CommandOptions holds common options for conductor commands
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a new command with the standard conductor flags
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to conductor.yml or conductor.toml")

	cmd.SetHelpFunc(styledHelpFunc)

	return cmd
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// LoadConfig loads the file named by --config, or the nearest configuration
// file, validates it against the schema and installs its logging section.
// With no file anywhere the defaults are returned.
func LoadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	opts := GetOptions(cmd)

	path := opts.ConfigFile
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
		}
		found, err := config.FindConfigFile(cwd)
		switch {
		case err == nil:
			path = found
		case errors.Is(err, errors.ErrCodeConfigNotFound):
			cfg := config.Default()
			logging.Configure(cfg.Logging)
			return cfg, "", nil
		default:
			return nil, "", err
		}
	}

	if err := ValidateConfigFile(path); err != nil {
		return nil, path, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	logging.Configure(cfg.Logging)
	return cfg, path, nil
}

// ValidateConfigFile checks the file at path against the configuration schema.
func ValidateConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.ConfigNotFound(path)
		}
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").WithDetail("path", path)
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build configuration schema")
	}
	if err := validator.ValidateFile(data, config.FormatForPath(path)); err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.New(errors.ErrCodeConfigInvalid, err.Error()).WithDetail("path", path)
	}
	return nil
}

// GetLogger returns the component logger, at debug level with --verbose.
// Call LoadConfig first so the logging section is applied.
func GetLogger(cmd *cobra.Command, component string) *logrus.Entry {
	entry := logging.NewLogger(component)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	return entry
}

// PrintJSON writes v to the command's stdout as indented JSON.
func PrintJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
