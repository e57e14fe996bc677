package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the process logger, set by Init
var Logger zerolog.Logger

// Init configures the process logger and installs it as the zerolog global.
// The server logs to stdout; the CLI passes stderr so command output stays clean.
func Init(level, format string, out io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(level))

	Logger = New(format, out).With().Str("service", "spaceflow").Logger()
	log.Logger = Logger
	return Logger
}

// New builds a logger writing to out in the given format (json or console)
func New(format string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	if strings.ToLower(format) == "json" {
		return zerolog.New(out).With().
			Timestamp().
			Caller().
			Logger()
	}

	// Console format with colors
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    out != os.Stdout && out != os.Stderr,
	}
	return zerolog.New(output).With().
		Timestamp().
		Logger()
}

// ParseLevel parses a string log level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
