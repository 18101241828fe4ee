package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// -----------------------------------------------------------------------------

// Logger is the printf-style logger shared by every component. Messages are
// formatted by the caller as "<component> : message".
type Logger struct {
	Name  string
	entry *logrus.Entry
}

// -----------------------------------------------------------------------------

// NewLogger builds a logger writing to stderr. level is a logrus level name
// ("debug", "info", ...); format is "json" or anything else for text.
func NewLogger(name, level, format string) *Logger {
	return NewLoggerWithOutput(name, level, format, os.Stderr)
}

// -----------------------------------------------------------------------------

// NewLoggerWithOutput is NewLogger with an explicit writer.
func NewLoggerWithOutput(name, level, format string, out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{
		Name:  name,
		entry: base.WithField("app", name),
	}
}

// -----------------------------------------------------------------------------

// NewNopLogger discards everything. Used by tests.
func NewNopLogger() *Logger {
	return NewLoggerWithOutput("nop", "panic", "text", io.Discard)
}

// -----------------------------------------------------------------------------

// With returns a child logger carrying an extra structured field.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{Name: l.Name, entry: l.entry.WithField(key, value)}
}

// -----------------------------------------------------------------------------

func (l *Logger) Debug(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warning(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

// Critical logs at error level with a marker field; it does not exit.
func (l *Logger) Critical(format string, args ...any) {
	l.entry.WithField("critical", true).Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// IsDebug reports whether debug messages are emitted.
func (l *Logger) IsDebug() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
