// Package bootstrap holds the process wiring shared by the BloodLink
// binaries: logger construction, AWS configuration, and selection of the
// transports and brokers named in config.
package bootstrap

import (
	"io"
	"log/slog"

	"bloodlink/internal/types"
)

// SlogAdapter wraps *slog.Logger to implement types.Logger. slog.Logger
// satisfies Info, Error and Warn, but its With returns *slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

var _ types.Logger = (*SlogAdapter)(nil)

// Adapt wraps l.
func Adapt(l *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: l}
}

func (a *SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *SlogAdapter) With(args ...any) types.Logger {
	return &SlogAdapter{logger: a.logger.With(args...)}
}

// Slog returns the wrapped logger.
func (a *SlogAdapter) Slog() *slog.Logger { return a.logger }

// NewLogger creates a JSON logger writing to w at the given level. Unknown
// levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps a LOG_LEVEL value to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
