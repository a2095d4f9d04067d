// Package logger wires zerolog for the whole binary.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options control logger construction.
type Options struct {
	Level   string // debug, info, warn or error; anything else falls back to info
	Console bool   // human-readable console output instead of JSON
}

// New builds the root logger. The global zerolog level is set as a side
// effect so child loggers inherit it.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if opts.Console {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Install makes l the zerolog package-level logger, so code that logs
// through zerolog/log shares the same output.
func Install(l zerolog.Logger) {
	log.Logger = l
}
