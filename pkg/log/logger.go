// Package log provides structured logging utilities for kristforge.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger with the specified configuration
func New(service, version, level, format string) *Logger {
	var handler slog.Handler

	// Parse log level
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	// Create base logger with service context
	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithDevice returns a logger with mining-device fields
func (l *Logger) WithDevice(name, id string) *Logger {
	return l.WithFields("device_name", name, "device_id", id)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// Connection logging helpers

// LogConnection logs connection events
func (l *Logger) LogConnection(event, endpoint string) {
	l.Info("connection event",
		"event", event,
		"endpoint", endpoint,
	)
}

// LogServerMessage logs raw Krist server messages (debug level)
func (l *Logger) LogServerMessage(direction, message string) {
	l.Debug("server message",
		"direction", direction,
		"message", message,
	)
}

// Mining-specific logging helpers

// LogSolutionFound logs a solution discovered by a miner
func (l *Logger) LogSolutionFound(address, nonce, prevBlock string, work int64) {
	l.Info("solution found",
		"address", address,
		"nonce", nonce,
		"prev_block", prevBlock,
		"work", work,
	)
}

// LogSubmission logs a solution submission
func (l *Logger) LogSubmission(address, nonce string, id int64) {
	l.Info("solution submitted",
		"address", address,
		"nonce", nonce,
		"submit_id", id,
	)
}

// LogBlockAccepted logs when the node accepts a submitted solution
func (l *Logger) LogBlockAccepted(address, nonce string, height, value int64) {
	l.Info("block accepted",
		"address", address,
		"nonce", nonce,
		"block_height", height,
		"block_value", value,
	)
}

// LogHashRate logs the sampled hashrate
func (l *Logger) LogHashRate(hashes int64, rate string) {
	l.Info("hashrate",
		"hashes_completed", hashes,
		"rate", rate,
	)
}
