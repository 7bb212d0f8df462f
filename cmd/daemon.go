package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/conductor/cli"
	"github.com/grovetools/conductor/internal/daemon/pidfile"
	"github.com/grovetools/conductor/pkg/daemon"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Inspect or stop the running daemon",
	}
	cmd.AddCommand(newDaemonStatusCmd(), newDaemonStopCmd())
	return cmd
}

// DaemonStatus is the JSON form of 'daemon status'.
type DaemonStatus struct {
	Running bool                `json:"running"`
	PID     int                 `json:"pid,omitempty"`
	Socket  string              `json:"socket"`
	Info    *daemon.RunningInfo `json:"info,omitempty"`
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		Long: `Check daemon status.

Exits non-zero when the daemon is stopped so scripts can test for it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			running, pid, err := pidfile.IsRunning(cfg.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			status := DaemonStatus{Running: running, PID: pid, Socket: cfg.SocketPath()}

			if running {
				if client, err := daemon.Connect(cfg); err == nil {
					if info, err := client.Info(cmd.Context()); err == nil {
						status.Info = info
					}
				}
			}

			if cli.GetOptions(cmd).JSONOutput {
				if err := cli.PrintJSON(cmd, status); err != nil {
					return err
				}
			} else {
				printDaemonStatus(cmd, status)
			}
			if !running {
				os.Exit(1) // Non-zero for stopped state (useful for scripts)
			}
			return nil
		},
	}
}

func printDaemonStatus(cmd *cobra.Command, s DaemonStatus) {
	t := cli.DefaultTheme
	out := cmd.OutOrStdout()
	if !s.Running {
		fmt.Fprintln(out, t.Error.Render("Stopped"))
		return
	}
	fmt.Fprintf(out, "%s (PID: %d)\n", t.Success.Render("Running"), s.PID)

	rows := [][2]string{{"Socket", s.Socket}}
	if info := s.Info; info != nil {
		rows = append(rows,
			[2]string{"Uptime", time.Since(info.StartedAt).Round(time.Second).String()},
			[2]string{"Sessions", fmt.Sprintf("%d (%d active)", info.Sessions, info.Active)},
			[2]string{"Sessions file", info.SessionsFile},
			[2]string{"Workers", strings.Join(info.Workers, ", ")},
		)
		if info.ScanRoot != "" {
			rows = append(rows, [2]string{"Repos root", info.ScanRoot})
		}
		if r := info.Recovery; r != nil {
			rows = append(rows, [2]string{"Recovery", fmt.Sprintf("every %s, running %s, init %s",
				r.Interval, r.RunningTimeout, r.InitTimeout)})
		}
	} else {
		rows = append(rows, [2]string{"API", t.Warning.Render("not responding")})
	}
	for _, row := range rows {
		fmt.Fprintf(out, "%s %s\n", t.Bold.Render(fmt.Sprintf("%-14s", row[0]+":")), row[1])
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			running, pid, err := pidfile.IsRunning(cfg.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}
