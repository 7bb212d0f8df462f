package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/conductor/cli"
	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/pkg/daemon"
	"github.com/grovetools/conductor/pkg/sessions"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions", "s"},
		Short:   "Create, inspect and transition sessions",
	}
	cmd.AddCommand(
		newSessionCreateCmd(),
		newSessionListCmd(),
		newSessionShowCmd(),
		newSessionTransitionCmd(),
		newSessionAttachCmd(),
		newSessionTouchCmd(),
		newSessionRemoveCmd(),
		newSessionWatchCmd(),
	)
	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var req daemon.CreateSessionRequest
	cmd := &cobra.Command{
		Use:   "create <repository>",
		Short: "Create a session in INITIALIZING",
		Long: `Create a session in INITIALIZING.

With --provision the repository is resolved under the repositories root
(cloning --remote when it is missing), a worktree is prepared for the
session and the session is driven to READY, or to ERROR on failure.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Repository = args[0]
			return withClient(cmd, func(ctx context.Context, client daemon.Client) error {
				rec, err := client.CreateSession(ctx, req)
				if err != nil {
					return err
				}
				return printSession(cmd, rec)
			})
		},
	}
	cmd.Flags().StringVar(&req.ID, "id", "", "Session ID (generated when empty)")
	cmd.Flags().StringVar(&req.WorktreePath, "worktree", "", "Worktree path for the session")
	cmd.Flags().StringVar(&req.RemoteURL, "remote", "", "Remote to clone when the repository is missing")
	cmd.Flags().StringVar(&req.UserID, "user", "", "Owning user ID")
	cmd.Flags().StringVar(&req.GuildID, "guild", "", "Owning guild ID")
	cmd.Flags().BoolVar(&req.Provision, "provision", false, "Prepare the repository and worktree, then mark the session READY")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client daemon.Client) error {
				list, err := client.ListSessions(ctx, activeOnly)
				if err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return cli.PrintJSON(cmd, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), cli.DefaultTheme.Muted.Render("No sessions"))
					return nil
				}

				t := cli.DefaultTheme
				tbl := cli.NewTable("ID", "STATE", "REPOSITORY", "CONTAINER", "UPDATED")
				for _, rec := range list {
					tbl.Row(
						rec.ID,
						t.RenderState(rec.State),
						rec.Repository,
						orDash(rec.ContainerID),
						formatAge(rec.UpdatedAt),
					)
				}
				fmt.Fprintln(cmd.OutOrStdout(), tbl)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only sessions that are still being worked on")
	return cmd
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client daemon.Client) error {
				rec, err := client.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				return printSession(cmd, rec)
			})
		},
	}
}

func newSessionTransitionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transition <id> <state> [key=value...]",
		Short: "Move a session to a new state",
		Long: `Move a session to a new state.

Trailing key=value pairs are recorded as metadata on the transition.
Valid states: ` + joinStates(sessions.AllStates),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := sessions.ParseState(args[1])
			if err != nil {
				return errors.New(errors.ErrCodeInvalidInput, err.Error())
			}
			meta, err := parseKeyValues(args[2:])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, client daemon.Client) error {
				rec, err := client.ChangeState(ctx, args[0], daemon.StateChangeRequest{State: state, Metadata: meta})
				if err != nil {
					return err
				}
				return printSession(cmd, rec)
			})
		},
	}
}

func newSessionAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id> <container-id>",
		Short: "Record the container running a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client daemon.Client) error {
				rec, err := client.AttachContainer(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printSession(cmd, rec)
			})
		},
	}
}

func newSessionTouchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <id>",
		Short: "Refresh a session's activity timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client daemon.Client) error {
				rec, err := client.Touch(ctx, args[0])
				if err != nil {
					return err
				}
				return printSession(cmd, rec)
			})
		},
	}
}

func newSessionRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, client daemon.Client) error {
				if err := client.RemoveSession(ctx, args[0]); err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return cli.PrintJSON(cmd, map[string]string{"removed": args[0]})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Removed session %s\n", cli.DefaultTheme.Success.Render("✓"), args[0])
				return nil
			})
		},
	}
}

func newSessionWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream session events from the daemon",
		Long: `Stream session events from the daemon.

Requires a running daemon. With --json each event is printed as one JSON
line; otherwise events are summarised one per line.`,
		Args: cobra.NoArgs,
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

			events, err := client.StreamEvents(cmd.Context())
			if err != nil {
				return err
			}
			jsonOut := cli.GetOptions(cmd).JSONOutput
			out := cmd.OutOrStdout()
			for frame := range events {
				if jsonOut {
					line, err := json.Marshal(frame)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(line))
					continue
				}
				fmt.Fprintln(out, formatFrame(frame))
			}
			return nil
		},
	}
}

// formatFrame renders one event frame as a single human-readable line.
func formatFrame(frame daemon.EventFrame) string {
	t := cli.DefaultTheme
	ts := t.Muted.Render(time.Now().Format("15:04:05"))

	switch frame.Type {
	case sessions.EventSessionCreated:
		var ev sessions.SessionCreated
		if json.Unmarshal(frame.Data, &ev) == nil && ev.Session != nil {
			return fmt.Sprintf("%s %s %s %s", ts, t.Success.Render("created"), ev.Session.ID, t.Muted.Render(ev.Session.Repository))
		}
	case sessions.EventStateChanged:
		var ev sessions.StateChanged
		if json.Unmarshal(frame.Data, &ev) == nil {
			line := fmt.Sprintf("%s %s %s %s → %s", ts, t.Info.Render("state"), ev.ID,
				t.RenderState(ev.OldState), t.RenderState(ev.NewState))
			if reason := ev.Metadata["reason"]; reason != "" {
				line += " " + t.Muted.Render("("+reason+")")
			}
			return line
		}
	case sessions.EventSessionRemoved:
		var ev sessions.SessionRemoved
		if json.Unmarshal(frame.Data, &ev) == nil {
			return fmt.Sprintf("%s %s %s", ts, t.Warning.Render("removed"), ev.ID)
		}
	case sessions.EventSessionError:
		var ev sessions.SessionError
		if json.Unmarshal(frame.Data, &ev) == nil {
			return fmt.Sprintf("%s %s %s %s", ts, t.Error.Render("error"), ev.ID, ev.Message)
		}
	}
	return fmt.Sprintf("%s %s %s", ts, frame.Type, string(frame.Data))
}

func printSession(cmd *cobra.Command, rec *sessions.Record) error {
	if cli.GetOptions(cmd).JSONOutput {
		return cli.PrintJSON(cmd, rec)
	}

	t := cli.DefaultTheme
	out := cmd.OutOrStdout()
	field := func(label, value string) {
		fmt.Fprintf(out, "%s %s\n", t.Bold.Render(fmt.Sprintf("%-12s", label+":")), value)
	}

	field("ID", rec.ID)
	field("State", t.RenderState(rec.State))
	field("Repository", rec.Repository)
	field("Worktree", orDash(rec.WorktreePath))
	field("Container", orDash(rec.ContainerID))
	field("Created", rec.CreatedAt.Local().Format(time.RFC3339))
	field("Updated", fmt.Sprintf("%s (%s)", rec.UpdatedAt.Local().Format(time.RFC3339), formatAge(rec.UpdatedAt)))
	if rec.Metadata.UserID != "" || rec.Metadata.GuildID != "" {
		field("Owner", fmt.Sprintf("user=%s guild=%s", orDash(rec.Metadata.UserID), orDash(rec.Metadata.GuildID)))
	}

	if len(rec.Metadata.Extra) > 0 {
		keys := make([]string, 0, len(rec.Metadata.Extra))
		for k := range rec.Metadata.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(out, t.Bold.Render("Metadata:"))
		for _, k := range keys {
			fmt.Fprintf(out, "  %s=%s\n", t.Muted.Render(k), rec.Metadata.Extra[k])
		}
	}
	return nil
}

func parseKeyValues(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("metadata must be key=value, got %q", arg))
		}
		meta[k] = v
	}
	return meta, nil
}

func joinStates(states []sessions.State) string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatAge renders how long ago ts was, coarsely.
func formatAge(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	d := time.Since(ts)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
