package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/config"
)

// Reasons recorded on sessions failed by recovery.
const (
	ReasonRunningTimeout = "timeout auto-recovery"
	ReasonInitTimeout    = "initialization timeout auto-recovery"
)

// RecoveryOptions configure the scheduler. Zero values take the defaults.
type RecoveryOptions struct {
	Interval       time.Duration
	RunningTimeout time.Duration
	InitTimeout    time.Duration
}

// RecoveryOptionsFromConfig reads the recovery config section.
func RecoveryOptionsFromConfig(cfg config.RecoveryConfig) RecoveryOptions {
	return RecoveryOptions{
		Interval:       config.Duration(cfg.Interval, config.DefaultRecoveryInterval),
		RunningTimeout: config.Duration(cfg.RunningTimeout, config.DefaultRunningTimeout),
		InitTimeout:    config.Duration(cfg.InitTimeout, config.DefaultInitTimeout),
	}
}

func (o RecoveryOptions) withDefaults() RecoveryOptions {
	if o.Interval <= 0 {
		o.Interval = config.DefaultRecoveryInterval
	}
	if o.RunningTimeout <= 0 {
		o.RunningTimeout = config.DefaultRunningTimeout
	}
	if o.InitTimeout <= 0 {
		o.InitTimeout = config.DefaultInitTimeout
	}
	return o
}

// RecoveryReport summarises one pass. Skipped lists sessions that looked
// stuck in the listing but were updated or moved on before recovery
// reached them.
type RecoveryReport struct {
	Checked   int
	Recovered []string
	Skipped   []string
	Failed    map[string]error
}

// RecoveryScheduler periodically fails sessions that have not been updated
// within their deadline. It goes through the Registry like any other
// caller, and the deadline is re-checked under the session's lock.
type RecoveryScheduler struct {
	registry *Registry
	opts     RecoveryOptions
	logger   *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecoveryScheduler creates a stopped scheduler.
func NewRecoveryScheduler(registry *Registry, opts RecoveryOptions, logger *logrus.Entry) *RecoveryScheduler {
	return &RecoveryScheduler{
		registry: registry,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Name identifies the scheduler as a daemon worker.
func (s *RecoveryScheduler) Name() string { return "recovery" }

// Options returns the effective options.
func (s *RecoveryScheduler) Options() RecoveryOptions { return s.opts }

// expired returns the recovery reason for rec at now, or "" when rec is
// within its deadline.
func (s *RecoveryScheduler) expired(rec *Record, now time.Time) string {
	elapsed := now.Sub(rec.UpdatedAt)
	switch rec.State {
	case StateRunning:
		if elapsed > s.opts.RunningTimeout {
			return ReasonRunningTimeout
		}
	case StateInitializing, StateStarting:
		if elapsed > s.opts.InitTimeout {
			return ReasonInitTimeout
		}
	}
	return ""
}

// RunOnce performs a single pass over the active sessions. A failure on
// one session is logged and does not stop the pass.
func (s *RecoveryScheduler) RunOnce() RecoveryReport {
	active := s.registry.ListActive()
	report := RecoveryReport{Checked: len(active), Failed: map[string]error{}}

	for _, rec := range active {
		if s.expired(rec, s.registry.Now()) == "" {
			continue
		}

		// The reason follows the state seen under the lock; extra is read
		// only after pred has run.
		var live Record
		extra := map[string]string{}
		pred := func(cur *Record) bool {
			live = *cur
			reason := s.expired(cur, s.registry.Now())
			extra["reason"] = reason
			return reason != ""
		}

		log := s.logger.WithField("session_id", rec.ID)
		applied, err := s.registry.ChangeStateIf(rec.ID, StateError, extra, pred)
		if err != nil {
			log.WithError(err).Warn("Recovery could not fail stuck session")
			report.Failed[rec.ID] = err
			continue
		}
		log = log.WithFields(logrus.Fields{
			"state": live.State,
			"idle":  s.registry.Now().Sub(live.UpdatedAt).Round(time.Second),
		})
		if !applied {
			log.Debug("Session was updated during recovery, skipping")
			report.Skipped = append(report.Skipped, rec.ID)
			continue
		}
		log.Info("Recovered stuck session")
		report.Recovered = append(report.Recovered, rec.ID)
	}
	return report
}

// Run performs a pass immediately and then on every interval until ctx is
// cancelled. A pass in progress when ctx is cancelled runs to completion.
func (s *RecoveryScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.RunOnce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// Start runs the scheduler in the background. Starting a running
// scheduler does nothing.
func (s *RecoveryScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	s.logger.WithField("interval", s.opts.Interval).Debug("Recovery scheduler started")
}

// Stop cancels the timer and waits for an in-flight pass to finish. It is
// safe to call repeatedly and on a scheduler that was never started.
func (s *RecoveryScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Debug("Recovery scheduler stopped")
}
