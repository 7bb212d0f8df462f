package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/conductor/cli"
	"github.com/grovetools/conductor/config"
	"github.com/grovetools/conductor/internal/daemon/engine"
	"github.com/grovetools/conductor/internal/daemon/pidfile"
	"github.com/grovetools/conductor/internal/daemon/server"
	"github.com/grovetools/conductor/logging"
	"github.com/grovetools/conductor/pkg/daemon"
	"github.com/grovetools/conductor/pkg/repoindex"
	"github.com/grovetools/conductor/pkg/sessions"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conductor daemon in the foreground",
		Long: `Run the conductor daemon in the foreground.

The daemon owns the sessions file, fails sessions that stop making
progress, keeps a live index of the repositories root and serves the
HTTP API on a unix socket. SIGINT or SIGTERM shuts it down cleanly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg, cli.GetLogger(cmd, "daemon"))
		},
	}
}

// runDaemon blocks until ctx is cancelled or the server fails, then stops
// the workers and flushes the registry.
func runDaemon(ctx context.Context, cfg *config.Config, logger *logrus.Entry) error {
	pidPath := cfg.PidFilePath()
	sockPath := cfg.SocketPath()

	// 1. Acquire lock
	if err := pidfile.Acquire(pidPath); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	// 2. Registry
	store := sessions.NewFileStore(cfg.SessionsFile(), logging.NewLogger("store"))
	registry := sessions.NewRegistry(store, sessions.WithLogger(logging.NewLogger("registry")))
	loaded := registry.Load()
	defer func() {
		if err := registry.Close(); err != nil {
			logger.WithError(err).Error("Failed to flush sessions")
		}
	}()
	stopObserving := registry.Bus().Observe(eventLogger(logging.NewLogger("events")))
	defer stopObserving()

	// 3. Workers
	svc := daemon.NewService(cfg, registry, logger)
	eng := engine.New(logger)
	info := &daemon.RunningInfo{
		PID:          os.Getpid(),
		StartedAt:    time.Now(),
		Socket:       sockPath,
		SessionsFile: cfg.SessionsFile(),
		ScanRoot:     svc.ScanRoot,
	}
	if cfg.RecoveryEnabled() {
		sched := sessions.NewRecoveryScheduler(registry, sessions.RecoveryOptionsFromConfig(cfg.Recovery), logging.NewLogger("recovery"))
		eng.Register(sched)
		opts := sched.Options()
		info.Recovery = &daemon.RecoveryInfo{
			Interval:       opts.Interval.String(),
			RunningTimeout: opts.RunningTimeout.String(),
			InitTimeout:    opts.InitTimeout.String(),
		}
	}
	if svc.Index != nil {
		eng.Register(repoindex.NewWatcher(svc.Index, 0, logging.NewLogger("repoindex")))
	}
	info.Workers = eng.Workers()

	// 4. Server
	srv := server.New(svc, logging.NewLogger("server"))
	srv.SetRunningInfo(info)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Start(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(sockPath) }()

	logger.WithFields(logrus.Fields{
		"pid":      info.PID,
		"socket":   sockPath,
		"sessions": loaded,
		"workers":  info.Workers,
	}).Info("Daemon started")

	// 5. Wait for a signal or a server failure
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received stop signal")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}
	<-engineDone
	_ = os.Remove(sockPath)

	logger.Info("Daemon stopped")
	return runErr
}

// eventLogger records every registry event.
func eventLogger(logger *logrus.Entry) sessions.Handler {
	return func(e sessions.Event) {
		log := logger.WithField("session_id", e.SessionID())
		switch ev := e.(type) {
		case sessions.SessionCreated:
			log.WithField("repository", ev.Session.Repository).Info("Session created")
		case sessions.StateChanged:
			log = log.WithFields(logrus.Fields{"from": ev.OldState, "to": ev.NewState})
			if reason := ev.Metadata["reason"]; reason != "" {
				log = log.WithField("reason", reason)
			}
			log.Info("Session state changed")
		case sessions.SessionRemoved:
			log.Info("Session removed")
		case sessions.SessionError:
			log.WithField("error", ev.Message).Error("Session error")
		}
	}
}
