// Package logging builds the daemon's zerolog logger.
//
// Console output is human readable (millisecond timestamps); "json" format
// writes one structured object per line for journald or log shippers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config selects level and output format.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // console (default) or json
}

// New returns a logger writing to stdout.
func New(cfg Config) (zerolog.Logger, error) {
	return NewWriter(cfg, os.Stdout)
}

// NewWriter returns a logger writing to w.
func NewWriter(cfg Config, w io.Writer) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	format, err := ParseFormat(cfg.Format)
	if err != nil {
		return zerolog.Nop(), err
	}
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ParseFormat normalizes an output format name. Empty means console.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatConsole:
		return FormatConsole, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("log format %q: want console or json", s)
	}
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}
