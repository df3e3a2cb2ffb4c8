package emac

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a part of the driver in log records.
type Component string

const (
	ComponentDMA    Component = "dma"
	ComponentMAC    Component = "mac"
	ComponentIRQ    Component = "irq"
	ComponentLink   Component = "link"
	ComponentNetdev Component = "netdev"
)

var (
	logger   *slog.Logger
	logLevel = new(slog.LevelVar)
	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogLevel sets the minimum level of the default logger.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// SetLogger replaces the logger used by the driver.
func SetLogger(l *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logger = l
}

func currentLogger() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logger
}

// logEnabled reports whether records at level are written. Callers on
// the data path check it before building the record's arguments.
func logEnabled(level slog.Level) bool {
	return currentLogger().Enabled(context.Background(), level)
}

func logAt(level slog.Level, c Component, msg string, args ...any) {
	l := currentLogger()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, msg, append([]any{"component", string(c)}, args...)...)
}

func logDebug(c Component, msg string, args ...any) {
	logAt(slog.LevelDebug, c, msg, args...)
}

func logInfo(c Component, msg string, args ...any) {
	logAt(slog.LevelInfo, c, msg, args...)
}

func logWarn(c Component, msg string, args ...any) {
	logAt(slog.LevelWarn, c, msg, args...)
}

func logError(c Component, msg string, args ...any) {
	logAt(slog.LevelError, c, msg, args...)
}
