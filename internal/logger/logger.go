// Package logger provides the zerolog logger shared by the CLI and the MCP server.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a JSON logger on stderr tagged with component.
// Unknown levels fall back to warn.
func New(component, level string) zerolog.Logger {
	return NewWithWriter(os.Stderr, component, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, component, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Str("component", component).
		Timestamp().
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to warn.
func ParseLevel(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return zerolog.WarnLevel
	}
	return lvl
}
