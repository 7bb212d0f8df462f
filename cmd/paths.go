package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/conductor/cli"
	"github.com/grovetools/conductor/pkg/paths"
)

// PathsOutput lists the files and directories conductor uses.
type PathsOutput struct {
	ConfigDir    string `json:"config_dir"`
	StateDir     string `json:"state_dir"`
	RuntimeDir   string `json:"runtime_dir"`
	ConfigFile   string `json:"config_file,omitempty"`
	SessionsFile string `json:"sessions_file"`
	Socket       string `json:"socket"`
	PidFile      string `json:"pid_file"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the paths conductor reads and writes",
		Long: `Print the paths conductor reads and writes.

Directories follow CONDUCTOR_HOME when set, then the XDG variables:
- config_dir: conductor.yml
- state_dir: sessions file, logs, pid file
- runtime_dir: daemon socket

Files configured in conductor.yml take precedence over the defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			output := PathsOutput{
				ConfigDir:    paths.ConfigDir(),
				StateDir:     paths.StateDir(),
				RuntimeDir:   paths.RuntimeDir(),
				ConfigFile:   cfgPath,
				SessionsFile: cfg.SessionsFile(),
				Socket:       cfg.SocketPath(),
				PidFile:      cfg.PidFilePath(),
			}
			if cli.GetOptions(cmd).JSONOutput {
				return cli.PrintJSON(cmd, output)
			}

			t := cli.DefaultTheme
			out := cmd.OutOrStdout()
			row := func(label, value string) {
				if value == "" {
					value = t.Muted.Render("(none)")
				}
				fmt.Fprintf(out, "%s %s\n", t.Bold.Render(fmt.Sprintf("%-14s", label)), value)
			}
			row("config dir", output.ConfigDir)
			row("config file", output.ConfigFile)
			row("state dir", output.StateDir)
			row("runtime dir", output.RuntimeDir)
			row("sessions file", output.SessionsFile)
			row("socket", output.Socket)
			row("pid file", output.PidFile)
			return nil
		},
	}
}
