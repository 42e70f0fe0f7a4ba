// Package logging configures the slog logger used by readers, writers and
// the command line. Logs go to stderr so that stdout stays free for
// converted output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Level is a log level name accepted on the command line.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var levels = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel maps a level name to a Level. Unknown names map to LevelInfo.
func ParseLevel(name string) Level {
	if l, ok := levels[strings.ToLower(name)]; ok {
		return l
	}
	return LevelInfo
}

// Format selects the log encoding.
type Format int

const (
	// FormatJSON writes one JSON object per record.
	FormatJSON Format = iota
	// FormatText writes key=value records.
	FormatText
)

var current atomic.Pointer[slog.Logger]

func init() {
	InitLogger(LevelWarn, FormatText)
}

// InitLogger replaces the global logger with one writing to stderr.
func InitLogger(level Level, format Format) {
	InitLoggerTo(os.Stderr, level, format)
}

// InitLoggerTo replaces the global logger with one writing to w.
func InitLoggerTo(w io.Writer, level Level, format Format) {
	l := New(w, level, format)
	current.Store(l)
	slog.SetDefault(l)
}

// New returns a logger writing to w. The global logger is unchanged.
// Timestamps are written in RFC 3339 with second precision.
func New(w io.Writer, level Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// GetLogger returns the global logger.
func GetLogger() *slog.Logger {
	return current.Load()
}

// WithConversionID returns logger tagged with a new conversion id, so that
// the records of one conversion can be told apart in a shared log.
func WithConversionID(logger *slog.Logger) *slog.Logger {
	return logger.With("conversion_id", uuid.NewString())
}

// ConversionStart logs the start of a conversion.
func ConversionStart(logger *slog.Logger, from, to, input string, args ...any) {
	logger.Info("conversion_start", append([]any{"from", from, "to", to, "input", input}, args...)...)
}

// ConversionDone logs the end of a successful conversion.
func ConversionDone(logger *slog.Logger, from, to string, events, diagnostics int, duration time.Duration, args ...any) {
	logger.Info("conversion_done", append([]any{
		"from", from,
		"to", to,
		"events", events,
		"diagnostics", diagnostics,
		"duration_ms", duration.Milliseconds(),
	}, args...)...)
}

// ConversionError logs a fatal error of a read, check or write pass.
func ConversionError(logger *slog.Logger, format, pass string, err error, args ...any) {
	logger.Error("conversion_error", append([]any{"format", format, "pass", pass, "error", err.Error()}, args...)...)
}

// DiagnosticLogged logs a non-fatal diagnostic.
func DiagnosticLogged(logger *slog.Logger, kind, elementID, message string) {
	logger.Warn("diagnostic", "kind", kind, "element_id", elementID, "message", message)
}
