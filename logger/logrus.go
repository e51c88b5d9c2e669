package logger

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogrusLogger wraps a logrus logger to implement the Logger interface.
type LogrusLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

// NewLogrusLogger creates a new LogrusLogger with JSON formatter.
func NewLogrusLogger(level string) *LogrusLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(parseLevel(level))

	return &LogrusLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
	}
}

// NewRunLogger creates a logger for a single automation run. Entries are written
// as colored text to console and, when file is not nil, as plain text to file.
func NewRunLogger(level string, console io.Writer, file io.Writer) *LogrusLogger {
	return newRunLogger(level, &logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	}, console, file)
}

// NewJSONRunLogger is NewRunLogger with JSON console output, for runs started
// by a process that already logs JSON to the same stream.
func NewJSONRunLogger(level string, console io.Writer, file io.Writer) *LogrusLogger {
	return newRunLogger(level, &logrus.JSONFormatter{}, console, file)
}

func newRunLogger(level string, formatter logrus.Formatter, console io.Writer, file io.Writer) *LogrusLogger {
	logger := logrus.New()
	logger.SetFormatter(formatter)
	logger.SetOutput(console)
	logger.SetLevel(parseLevel(level))

	if file != nil {
		logger.AddHook(&fileHook{
			writer: file,
			formatter: &logrus.TextFormatter{
				DisableColors:    true,
				FullTimestamp:    true,
				TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
				QuoteEmptyFields: true,
			},
		})
	}

	return &LogrusLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
	}
}

func parseLevel(level string) logrus.Level {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return logLevel
}

// Debug logs a debug-level message.
func (l *LogrusLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	if fields != nil {
		l.entry.WithContext(ctx).WithFields(fields).Debug(msg)
	} else {
		l.entry.WithContext(ctx).Debug(msg)
	}
}

// Info logs an info-level message.
func (l *LogrusLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	if fields != nil {
		l.entry.WithContext(ctx).WithFields(fields).Info(msg)
	} else {
		l.entry.WithContext(ctx).Info(msg)
	}
}

// Warn logs a warning-level message.
func (l *LogrusLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	if fields != nil {
		l.entry.WithContext(ctx).WithFields(fields).Warn(msg)
	} else {
		l.entry.WithContext(ctx).Warn(msg)
	}
}

// Error logs an error-level message.
func (l *LogrusLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	if fields != nil {
		l.entry.WithContext(ctx).WithFields(fields).Error(msg)
	} else {
		l.entry.WithContext(ctx).Error(msg)
	}
}

// WithField returns a new logger with the given field added.
func (l *LogrusLogger) WithField(key string, value interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithField(key, value),
	}
}

// WithFields returns a new logger with the given fields added.
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithFields(fields),
	}
}

// fileHook mirrors every entry to a second writer using its own formatter,
// so the run log file never carries terminal color codes.
type fileHook struct {
	mu        sync.Mutex
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(line)
	return err
}
