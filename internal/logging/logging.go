package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the service logger. In dev the output is a human-readable console
// writer, elsewhere JSON lines with caller information.
func New(service, env string) zerolog.Logger {
	zerolog.DurationFieldUnit = time.Millisecond

	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().
			Timestamp().
			Str("service", service).
			Logger()
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Str("service", service).
		Logger()
}
