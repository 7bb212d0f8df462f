package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/conductor/config"
	"github.com/grovetools/conductor/pkg/paths"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
	logCfg    config.LoggingConfig
)

// Configure installs the logging section used by subsequent NewLogger calls
// and drops cached loggers so they pick it up.
func Configure(cfg config.LoggingConfig) {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	logCfg = cfg
	loggers = make(map[string]*logrus.Entry)
}

// NewLogger creates and returns a pre-configured logger for a specific component.
// Loggers are cached per component.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()

	levelStr := "info"
	if env := os.Getenv("CONDUCTOR_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("CONDUCTOR_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: config.FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format})
	}

	var writers []io.Writer
	if w := openFileSink(logger, component); w != nil {
		writers = append(writers, w)
	}
	if shouldLogToStderr(logger.GetLevel()) {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// Discard returns an entry that drops everything; used by tests and as a
// fallback when a component is constructed without a logger.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func openFileSink(logger *logrus.Logger, component string) io.Writer {
	var logFilePath string
	if logCfg.File.Enabled && logCfg.File.Path != "" {
		logFilePath = paths.Expand(logCfg.File.Path)
	} else if logCfg.File.Enabled {
		dateStr := time.Now().Format("2006-01-02")
		logFilePath = filepath.Join(paths.StateDir(), "logs", fmt.Sprintf("%s-%s.log", component, dateStr))
	}
	if logFilePath == "" {
		return nil
	}

	dir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warnf("Failed to create log directory %s: %v", dir, err)
		return nil
	}
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.Warnf("Failed to open log file %s: %v", logFilePath, err)
		return nil
	}
	return file
}

func shouldLogToStderr(level logrus.Level) bool {
	switch logCfg.Format.StructuredToStderr {
	case "always":
		return true
	case "never":
		return false
	default:
		// auto: debug runs and non-interactive stderr (pipes, CI, daemons) get logs.
		isDebug := os.Getenv("CONDUCTOR_DEBUG") == "1" || level >= logrus.DebugLevel
		isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		return isDebug || !isInteractive
	}
}
