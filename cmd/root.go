// Package cmd implements the conductor command line.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/grovetools/conductor/cli"
	"github.com/grovetools/conductor/pkg/daemon"
	"github.com/grovetools/conductor/version"
)

// NewRootCmd assembles the conductor command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"conductor",
		"Manage work session lifecycles and scan repository trees",
	)
	root.Long = `Manage work session lifecycles and scan repository trees.

Session commands talk to the daemon when 'conductor serve' is running and
otherwise operate on the sessions file directly.`
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cli.ConfigureColor(cmd.OutOrStdout(), cli.GetOptions(cmd).JSONOutput)
	}
	cli.SetVersionTemplate(root, version.GetInfo())

	root.AddCommand(
		newServeCmd(),
		newDaemonCmd(),
		newSessionCmd(),
		newScanCmd(),
		newReposCmd(),
		newConfigCmd(),
		newPathsCmd(),
		cli.NewVersionCommand("conductor"),
	)

	cli.ApplyStyledHelpRecursive(root)
	cli.SetStyledHelpWithExtras(root, func(w io.Writer, t *cli.Theme) {
		fmt.Fprintln(w, "\n "+t.Header.Render("ENVIRONMENT"))
		fmt.Fprintln(w, " CONDUCTOR_HOME       Portable root for config, state and runtime files")
		fmt.Fprintln(w, " CONDUCTOR_LOG_LEVEL  Minimum log level (debug, info, warn, error)")
		fmt.Fprintln(w, " CONDUCTOR_THEME      Output colours: kanagawa or terminal")
	})
	return root
}

// withClient loads configuration and runs fn with a daemon client, falling
// back to the local sessions file when the daemon is down.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, client daemon.Client) error) error {
	cfg, _, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	client := daemon.New(cfg, cli.GetLogger(cmd, "client"))
	defer client.Close()
	return fn(cmd.Context(), client)
}

