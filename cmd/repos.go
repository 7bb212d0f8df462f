package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/conductor/cli"
	"github.com/grovetools/conductor/pkg/daemon"
)

func newReposCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "repos [prefix]",
		Short: "List repository names under the repositories root",
		Long: `List repository names under the repositories root.

Names come from the repository index, which the daemon keeps current by
watching the root. Without a daemon the index is built on demand.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prefix string
			if len(args) == 1 {
				prefix = args[0]
			}
			return withClient(cmd, func(ctx context.Context, client daemon.Client) error {
				names, err := client.RepositoryNames(ctx, prefix, limit)
				if err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return cli.PrintJSON(cmd, names)
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Maximum number of names (0 for all)")
	cmd.AddCommand(newReposShowCmd(), newReposRefreshCmd())
	return cmd
}

func newReposShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show metadata for one repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client daemon.Client) error {
				repo, err := client.Repository(ctx, args[0])
				if err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return cli.PrintJSON(cmd, repo)
				}

				t := cli.DefaultTheme
				out := cmd.OutOrStdout()
				field := func(label, value string) {
					fmt.Fprintf(out, "%s %s\n", t.Bold.Render(fmt.Sprintf("%-14s", label+":")), value)
				}
				field("Name", repo.Name)
				field("Path", repo.Path)
				field("Remote", orDash(repo.URL))
				field("Branch", repo.Branch)
				field("Last commit", orDash(repo.LastCommitHash))
				field("Last modified", repo.LastModified.Local().Format(time.RFC3339))
				return nil
			})
		},
	}
}

func newReposRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the daemon's repository index now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := daemon.Connect(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.RefreshRepositories(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Repository index refreshed\n", cli.DefaultTheme.Success.Render("✓"))
			return nil
		},
	}
}
