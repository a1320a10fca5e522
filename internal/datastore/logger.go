// logger.go: package-level file logger for datastore operations
package datastore

import (
	"log/slog"
	"sync"

	"github.com/clinreview/clinreview/internal/logging"
)

var (
	datastoreLogger   *slog.Logger
	datastoreLevelVar = new(slog.LevelVar)
	loggerCloseFunc   func() error
	loggerOnce        sync.Once
	loggerMu          sync.RWMutex
)

const defaultLogPath = "logs/datastore.log"

// InitializeLogger initializes the datastore file logger. Safe to call
// multiple times; initialization happens only once. On failure the package
// falls back to a no-op logger so callers never nil-check.
func InitializeLogger(logFilePath string) error {
	var initErr error

	loggerOnce.Do(func() {
		if logFilePath == "" {
			logFilePath = defaultLogPath
		}
		datastoreLevelVar.Set(slog.LevelInfo)

		logger, closeFunc, err := logging.NewFileLogger(logFilePath, "datastore", datastoreLevelVar)
		if err != nil {
			logger = logging.NoopLogger()
			closeFunc = func() error { return nil }
			initErr = err
		}

		loggerMu.Lock()
		datastoreLogger = logger
		loggerCloseFunc = closeFunc
		loggerMu.Unlock()
	})

	return initErr
}

// getLogger returns the datastore logger, initializing it with the default
// path if no explicit InitializeLogger call happened first.
func getLogger() *slog.Logger {
	loggerMu.RLock()
	if datastoreLogger != nil {
		defer loggerMu.RUnlock()
		return datastoreLogger
	}
	loggerMu.RUnlock()

	_ = InitializeLogger(defaultLogPath)

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return datastoreLogger
}

// SetLogLevel changes the datastore log level at runtime.
func SetLogLevel(level slog.Level) {
	datastoreLevelVar.Set(level)
}

// CloseLogger flushes and closes the datastore log file.
func CloseLogger() error {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if loggerCloseFunc != nil {
		return loggerCloseFunc()
	}
	return nil
}
