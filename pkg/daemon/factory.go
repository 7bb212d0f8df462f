package daemon

import (
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/config"
	"github.com/grovetools/conductor/errors"
)

// New returns a Client that will use the daemon if available,
// otherwise falls back to LocalClient.
//
// Callers don't need to know whether the daemon is running; the same API
// works in both modes.
func New(cfg *config.Config, logger *logrus.Entry) Client {
	if client, err := Connect(cfg); err == nil {
		logger.WithField("socket", client.SocketPath()).Debug("Using daemon")
		return client
	}

	logger.Debug("Daemon not running, using local sessions file")
	return NewLocalClient(cfg, logger)
}

// Connect returns a RemoteClient if the daemon socket accepts connections.
// Use this where the daemon is required, such as streaming events.
func Connect(cfg *config.Config) (*RemoteClient, error) {
	socketPath := cfg.SocketPath()
	if _, err := os.Stat(socketPath); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNotFound, "daemon is not running; start it with 'conductor serve'").
			WithDetail("socket", socketPath)
	}
	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNotFound, "daemon is not responding").
			WithDetail("socket", socketPath)
	}
	conn.Close()
	return NewRemoteClient(socketPath), nil
}
