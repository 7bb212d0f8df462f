// Package engine runs the daemon's background workers.
package engine

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Worker is a long-running background task. Run blocks until ctx is
// cancelled or the worker fails.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Engine manages and runs all workers.
type Engine struct {
	mu      sync.Mutex
	workers []Worker
	logger  *logrus.Entry
}

// New creates a new Engine instance.
func New(logger *logrus.Entry) *Engine {
	return &Engine{logger: logger}
}

// Register adds a worker to the engine. Workers registered after Start
// are not run.
func (e *Engine) Register(w Worker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workers = append(e.workers, w)
}

// Workers returns the names of the registered workers.
func (e *Engine) Workers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.workers))
	for _, w := range e.workers {
		names = append(names, w.Name())
	}
	return names
}

// Start runs all workers and blocks until every one of them has returned.
// A failing worker is logged; the others keep running.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	workers := append([]Worker(nil), e.workers...)
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			log := e.logger.WithField("worker", w.Name())
			log.Info("Starting worker")
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("Worker failed")
				return
			}
			log.Debug("Worker stopped")
		}(w)
	}

	wg.Wait()
}
