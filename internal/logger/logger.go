package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Format selects how log lines are rendered.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// NewLogger creates a new zerolog logger with console output on stderr
func NewLogger() zerolog.Logger {
	return New(os.Stderr, "info", FormatConsole)
}

// New creates a logger writing to out. Unknown level names fall back to info, unknown
// formats to console.
func New(out io.Writer, level string, format Format) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if Format(strings.ToLower(string(format))) != FormatJSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return log.Output(out).With().Timestamp().Logger().Level(lvl)
}
