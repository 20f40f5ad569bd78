package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Init sets up the process-wide logger. Only the first call has any effect;
// debug enables debug level and source locations.
func Init(debug bool) {
	InitWithWriter(os.Stdout, debug)
}

// InitWithWriter is Init with a custom destination.
func InitWithWriter(w io.Writer, debug bool) {
	once.Do(func() {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level:     level,
			AddSource: debug,
		}

		defaultLogger = slog.New(slog.NewTextHandler(w, opts))
		slog.SetDefault(defaultLogger)
	})
}

func get() *slog.Logger {
	Init(false)
	return defaultLogger
}

// Debug logs at Debug level.
func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

// Info logs at Info level.
func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

// Warn logs at Warn level.
func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// Error logs at Error level.
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// With returns a new logger with the given attributes.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}
