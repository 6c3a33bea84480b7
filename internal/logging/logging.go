// Package logging builds the structured logger used across the server.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug | info | warn | error
	Format string // json | pretty
}

// New creates a zerolog logger with timestamps and a service field.
//
// Format "json" emits one JSON object per line (log-shipper friendly);
// "pretty" uses the console writer for local development. Unknown levels
// fall back to info.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "flow-server").
		Logger()
}
