// Package logger constructs the zerolog loggers used by the command line
// tools. There is no package level state: the caller builds one root
// logger and hands named children to the components that log.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the concrete logger type passed between packages.
type Logger = zerolog.Logger

// Options controls construction of the root logger.
type Options struct {
	Level  string    // trace, debug, info, warn or error; default info
	Format string    // console or json; default console
	Writer io.Writer // default os.Stderr
}

// New builds a root logger from the options.
func New(opts Options) (Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logger: %w", err)
		}
	}
	switch strings.ToLower(opts.Format) {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("logger: unknown format %q", opts.Format)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// Named returns a child logger tagged with a component name.
func Named(l Logger, name string) Logger {
	return l.With().Str("component", name).Logger()
}
