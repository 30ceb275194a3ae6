package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/obsgate/internal/infrastructure/config"
)

// serviceName is attached to every log record.
const serviceName = "obsgate"

// Logger is a slog.Logger whose level can change at runtime. Loggers
// derived with With or Component share the level of their root.
//
// Thread Safety: all methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New builds the gateway logger from the logging config.
// Records carry service and version and are timestamped in UTC.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, destination(cfg.Output))
}

func destination(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// NewWithWriter is New with an explicit destination. Tests use it to capture output.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: utcTime}

	var handler slog.Handler = slog.NewJSONHandler(output, opts)
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	}

	root := slog.New(handler).With("service", serviceName, "version", version)
	return &Logger{Logger: root, level: level}
}

// utcTime rewrites the record time to UTC.
func utcTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.TimeValue(a.Value.Time().UTC())
	}
	return a
}

// parseLevel maps debug, info, warn(ing) and error to slog levels.
// Anything else is info.
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

// SetLevel changes the level of this logger and every logger sharing its
// root. It returns the previous level.
func (l *Logger) SetLevel(level string) slog.Level {
	if l.level == nil {
		return slog.LevelInfo
	}
	prev := l.level.Level()
	l.level.Set(parseLevel(level))
	return prev
}

// Level returns the current level.
func (l *Logger) Level() slog.Level {
	if l.level == nil {
		return slog.LevelInfo
	}
	return l.level.Level()
}

// With returns a child logger with extra attributes.
//
//	devLogger := logger.With("device", "ccd0")
//	devLogger.Info("announced") // device=ccd0
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Component returns a child logger tagged with component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Device returns a child logger tagged with device=name.
func (l *Logger) Device(name string) *Logger {
	return l.With("device", name)
}

// Default is the logger used before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), level: new(slog.LevelVar)}
}
