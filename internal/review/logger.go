// logger.go: package-level file logger for the review workflow
package review

import (
	"log/slog"
	"sync"

	"github.com/clinreview/clinreview/internal/logging"
)

var (
	reviewLogger   *slog.Logger
	reviewLevelVar = new(slog.LevelVar)
	loggerClose    func() error
	loggerOnce     sync.Once
	loggerMu       sync.RWMutex
)

const defaultLogPath = "logs/review.log"

// InitializeLogger initializes the review file logger once. On failure the
// package falls back to a no-op logger.
func InitializeLogger(logFilePath string) error {
	var initErr error

	loggerOnce.Do(func() {
		if logFilePath == "" {
			logFilePath = defaultLogPath
		}
		reviewLevelVar.Set(slog.LevelInfo)

		logger, closeFunc, err := logging.NewFileLogger(logFilePath, "review", reviewLevelVar)
		if err != nil {
			logger = logging.NoopLogger()
			closeFunc = func() error { return nil }
			initErr = err
		}

		loggerMu.Lock()
		reviewLogger = logger
		loggerClose = closeFunc
		loggerMu.Unlock()
	})

	return initErr
}

// getLogger returns the logger, initializing it with the default path if
// no explicit InitializeLogger call happened first.
func getLogger() *slog.Logger {
	loggerMu.RLock()
	if reviewLogger != nil {
		defer loggerMu.RUnlock()
		return reviewLogger
	}
	loggerMu.RUnlock()

	_ = InitializeLogger(defaultLogPath)

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return reviewLogger
}

// SetLogLevel changes the review log level at runtime.
func SetLogLevel(level slog.Level) {
	reviewLevelVar.Set(level)
}

// CloseLogger flushes and closes the review log file.
func CloseLogger() error {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if loggerClose != nil {
		return loggerClose()
	}
	return nil
}
