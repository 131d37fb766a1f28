package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger from environment variables.
//
// THUMBNAIL_LOG_LEVEL controls the level: debug, info, warn, error (default: info).
// THUMBNAIL_LOG_FORMAT selects "console" for human-readable output; anything else
// writes JSON lines, which is what CloudWatch expects from the Lambda.
func Init() {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv("THUMBNAIL_LOG_LEVEL")))
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	var out io.Writer = os.Stderr
	if strings.EqualFold(os.Getenv("THUMBNAIL_LOG_FORMAT"), "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
