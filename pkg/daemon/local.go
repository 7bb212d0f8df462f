package daemon

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/config"
	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/pkg/sessions"
)

// LocalClient implements Client by calling library functions directly.
// This is used when the daemon is not running, providing the same API
// but executing all operations in-process against the sessions file.
type LocalClient struct {
	*Service
	logger *logrus.Entry
}

// NewLocalClient loads the sessions file named by cfg and wires the
// in-process service around it.
func NewLocalClient(cfg *config.Config, logger *logrus.Entry) *LocalClient {
	store := sessions.NewFileStore(cfg.SessionsFile(), logger.WithField("component", "store"))
	registry := sessions.NewRegistry(store, sessions.WithLogger(logger.WithField("component", "registry")))
	registry.Load()
	return &LocalClient{
		Service: NewService(cfg, registry, logger),
		logger:  logger,
	}
}

// StreamEvents returns an error for LocalClient since streaming is only
// available via the daemon.
func (c *LocalClient) StreamEvents(ctx context.Context) (<-chan EventFrame, error) {
	return nil, errors.New(errors.ErrCodeInvalidInput, "streaming not available in local mode; start the daemon with 'conductor serve'")
}

// Info returns an error for LocalClient since there is no daemon to describe.
func (c *LocalClient) Info(ctx context.Context) (*RunningInfo, error) {
	return nil, errors.New(errors.ErrCodeInvalidInput, "daemon is not running")
}

// IsRunning returns false since this is the local fallback client.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close flushes pending session writes.
func (c *LocalClient) Close() error {
	return c.Registry.Close()
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
