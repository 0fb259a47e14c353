package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/parkline/mqtt-forwarder/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "mqtt-forwarder"

// Logger is a *slog.Logger plus the log file it may be writing to.
//
// Every entry goes to the console and, when logging.file.path is set, to a
// size-rotated file. Safe for concurrent use.
type Logger struct {
	*slog.Logger

	// file is nil when file logging is disabled.
	file io.Closer
}

// New builds the logger described by cfg. Entries carry service and
// version attributes.
func New(cfg config.LoggingConfig, version string) *Logger {
	w := consoleWriter(cfg.Output)

	var sink *lumberjack.Logger
	if cfg.File.Path != "" {
		sink = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		w = io.MultiWriter(w, sink)
	}

	l := newWithWriter(w, cfg, version)
	if sink != nil {
		l.file = sink
	}
	return l
}

func consoleWriter(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// newWithWriter builds the slog handler on top of w.
func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(h).With("service", serviceName, "version", version),
	}
}

// parseLevel maps debug, info, warn/warning and error to slog levels.
// Anything else is info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// With returns a child logger carrying extra attributes. It shares the
// parent's file; close only the parent.
//
//	connLog := logger.With("connection", "inbound")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Default is the console logger used until the config file is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"}, "dev")
}
