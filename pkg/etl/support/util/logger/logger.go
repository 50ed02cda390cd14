// Package logger provides the leveled logger used across the ETL platform.
// Messages are formatted printf-style and handed to a slog handler, so output can be
// plain text on stderr or fanned out to an additional JSON file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is used for general informational messages.
	LevelInfo
	// LevelWarn is used for potential issues.
	LevelWarn
	// LevelError is used for error messages.
	LevelError
	// LevelFatal is used for errors that terminate the process.
	LevelFatal
)

// slogLevel maps a LogLevel to the corresponding slog level. FATAL is emitted above ERROR.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelFatal:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

var (
	mu       sync.RWMutex
	logLevel = LevelInfo
	levelVar = new(slog.LevelVar)
	current  = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	closer   io.Closer
)

// ParseLevel converts "DEBUG", "INFO", "WARN", "ERROR" or "FATAL" (case-insensitive) to a LogLevel.
// The second return value is false when the string is not a known level.
func ParseLevel(level string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	}
	return LevelInfo, false
}

// SetLogLevel sets the global log level.
// If an invalid value is specified, INFO is used and a warning is printed.
func SetLogLevel(level string) {
	parsed, ok := ParseLevel(level)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
	}
	mu.Lock()
	logLevel = parsed
	levelVar.Set(parsed.slogLevel())
	mu.Unlock()
}

// GetLogLevel returns the currently configured level.
func GetLogLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

// Options configures the handlers behind the logger.
type Options struct {
	// Level is one of DEBUG, INFO, WARN, ERROR, FATAL.
	Level string
	// File, when set, receives a JSON copy of every record in addition to stderr.
	File string
}

// Configure replaces the output handlers. It returns a cleanup function that closes the log file, if any.
func Configure(opts Options) func() error {
	SetLogLevel(opts.Level)

	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})
	if opts.File == "" {
		install(slog.New(stderrHandler), nil)
		return func() error { return nil }
	}

	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		install(slog.New(stderrHandler), nil)
		Errorf("Failed to open log file '%s', using stderr only: %v", opts.File, err)
		return func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: levelVar})
	install(slog.New(slogmulti.Fanout(stderrHandler, fileHandler)), file)
	return file.Close
}

// SetOutput sends text output to the given writers. Tests use it to capture log lines.
func SetOutput(writers ...io.Writer) {
	handlers := make([]slog.Handler, 0, len(writers))
	for _, w := range writers {
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
	}
	install(slog.New(slogmulti.Fanout(handlers...)), nil)
}

func install(l *slog.Logger, c io.Closer) {
	mu.Lock()
	defer mu.Unlock()
	if closer != nil && closer != c {
		_ = closer.Close()
	}
	current = l
	closer = c
}

func emit(level LogLevel, format string, v ...interface{}) {
	mu.RLock()
	enabled := logLevel <= level
	l := current
	mu.RUnlock()
	if !enabled {
		return
	}
	l.Log(context.Background(), level.slogLevel(), fmt.Sprintf(format, v...))
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	emit(LevelDebug, format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	emit(LevelInfo, format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	emit(LevelWarn, format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	emit(LevelError, format, v...)
}

// Fatalf outputs a FATAL level log message and terminates the program with os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	mu.RLock()
	l := current
	mu.RUnlock()
	l.Log(context.Background(), LevelFatal.slogLevel(), fmt.Sprintf(format, v...))
	os.Exit(1)
}
