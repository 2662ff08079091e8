package core

import (
	"github.com/sirupsen/logrus"
)

// Logger interface for structured logging
// Implementations can provide custom logging behavior (e.g., integration with zap, slog, etc.)
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LogrusLogger adapts a *logrus.Logger to Logger.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l. A nil l uses the logrus standard logger.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

// NewDefaultLogger returns the logger used when a config leaves Logger unset.
func NewDefaultLogger() *LogrusLogger {
	return NewLogrusLogger(nil)
}

// With returns a logger that always attaches fields.
func (l *LogrusLogger) With(fields ...Field) *LogrusLogger {
	return &LogrusLogger{entry: l.withFields(fields)}
}

func (l *LogrusLogger) Debug(msg string, fields ...Field) {
	l.withFields(fields).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, fields ...Field) {
	l.withFields(fields).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, fields ...Field) {
	l.withFields(fields).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, fields ...Field) {
	l.withFields(fields).Error(msg)
}

func (l *LogrusLogger) withFields(fields []Field) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	data := make(logrus.Fields, len(fields))
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	return l.entry.WithFields(data)
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
