// Package telemetry wraps zerolog into the small, optional diagnostic sink
// the core consumes as its Logger external interface (spec.md §6). Nothing
// in the core requires a logger: the zero value of Logger is a no-op.
package telemetry

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config configures a Logger.
type Config struct {
	// Level is one of "debug", "info", "warn", "error", "disabled". Defaults
	// to "info".
	Level string

	// Pretty switches from JSON output to a human-readable console writer,
	// matching the teacher's dev-vs-production logging split.
	Pretty bool

	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// Logger is a thin handle over a configured zerolog.Logger. Its zero value
// is safe to use and discards everything.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	zl := zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	return Logger{zl: zl}
}

// Nop returns a Logger that discards everything, for callers that don't wire
// one in.
func Nop() Logger {
	return Logger{zl: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l Logger) Error() *zerolog.Event { return l.zl.Error() }
