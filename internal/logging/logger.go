package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/rfstick/internal/config"
)

// Logger wraps slog.Logger with rfstick-specific defaults.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the logging configuration.
//
// It configures the output format (text for interactive use, JSON for
// machine consumption), level filtering, and the default service/version
// fields.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	default:
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "rfstick"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error. Defaults to info if
// unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	sessionLogger := logger.With("component", "session")
//	sessionLogger.Info("connected") // Includes component=session
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a logger for use before configuration is loaded.
//
// It writes text to stderr at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}, "dev")
}
