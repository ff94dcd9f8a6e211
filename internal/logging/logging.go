// Package logging builds the zerolog logger shared by the agent, its
// backends and the CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction.
type Options struct {
	Level   string    // trace, debug, info, warn, error; default info
	Out     io.Writer // default os.Stderr
	Console bool      // human-readable output instead of JSON
	Board   string    // attached to every event when set
}

// New returns a configured logger. An unknown level is an error so that
// typos in config files are not silently ignored.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logging: invalid level %q: %w", opts.Level, err)
		}
		level = l
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.Board != "" {
		ctx = ctx.Str("board", opts.Board)
	}
	return ctx.Logger(), nil
}

// Printable replaces non-printable runes so console traffic such as
// "\x03" can be logged on a single readable line.
func Printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || (r >= 0x20 && r != 0x7f) {
			return r
		}
		return '.'
	}, s)
}
