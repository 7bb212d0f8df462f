package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/grovetools/conductor/cli"
	"github.com/grovetools/conductor/pkg/daemon"
	"github.com/grovetools/conductor/pkg/scanner"
)

type scanFlags struct {
	maxDepth    int
	concurrency int
	skip        []string
	timeout     time.Duration
	order       string
}

func (f *scanFlags) bind(fs *pflag.FlagSet) {
	fs.IntVar(&f.maxDepth, "max-depth", 0, "Maximum directory depth to descend (default from config)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "Maximum concurrent git probes (default from config)")
	fs.StringSliceVar(&f.skip, "skip", nil, "Directory names or * wildcards to skip (replaces the configured list)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Per git call timeout (default from config)")
	fs.StringVar(&f.order, "order", "", "Result ordering: name or recency")
}

func (f *scanFlags) request(fs *pflag.FlagSet, root string) daemon.ScanRequest {
	req := daemon.ScanRequest{
		Root:        root,
		MaxDepth:    f.maxDepth,
		Concurrency: f.concurrency,
		TimeoutMs:   f.timeout.Milliseconds(),
		Order:       f.order,
	}
	// Only an explicit --skip replaces the configured patterns, even when empty.
	if fs.Changed("skip") {
		req.SkipPatterns = f.skip
		if req.SkipPatterns == nil {
			req.SkipPatterns = []string{}
		}
	}
	return req
}

func newScanCmd() *cobra.Command {
	var flags scanFlags
	cmd := &cobra.Command{
		Use:   "scan [root]",
		Short: "Discover git repositories under a directory",
		Long: `Discover git repositories under a directory.

Walks root (default: scanner.root from config), probes every directory
containing .git with bounded concurrency and reports the repositories
found, the directories skipped by pattern and any per-directory errors.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var root string
			if len(args) == 1 {
				root = args[0]
			}
			req := flags.request(cmd.Flags(), root)
			return withClient(cmd, func(ctx context.Context, client daemon.Client) error {
				res, err := client.Scan(ctx, req)
				if err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return cli.PrintJSON(cmd, res)
				}
				printScanResult(cmd, res)
				return nil
			})
		},
	}
	flags.bind(cmd.Flags())
	return cmd
}

func printScanResult(cmd *cobra.Command, res *scanner.ScanResult) {
	t := cli.DefaultTheme
	out := cmd.OutOrStdout()

	if len(res.Repositories) > 0 {
		tbl := cli.NewTable("NAME", "BRANCH", "LAST MODIFIED", "PATH")
		for _, repo := range res.Repositories {
			tbl.Row(repo.Name, repo.Branch, formatAge(repo.LastModified), repo.Path)
		}
		fmt.Fprintln(out, tbl)
	}

	summary := fmt.Sprintf("%d repositories in %s (%d skipped, %d errors, %s)",
		len(res.Repositories), res.Root, res.SkippedCount(), res.ErrorCount(),
		res.Duration.Round(time.Millisecond))
	if res.ErrorCount() > 0 {
		fmt.Fprintln(out, t.Warning.Render(summary))
	} else {
		fmt.Fprintln(out, t.Success.Render(summary))
	}

	for _, e := range res.Errors {
		fmt.Fprintf(out, "  %s %s %s\n", t.Error.Render(string(e.Code)), e.Path, t.Muted.Render(e.Error))
	}
}
