package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New constructs the CLI logger. Diagnostics go to the given writer
// (stderr in practice) so generated output and shell pipelines stay
// clean. Verbose mode drops the level to Debug and enables the console
// writer.
func New(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()

	if verbose {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}

	return logger
}

// Nop returns a disabled logger for components that require one but
// whose caller did not configure logging.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
