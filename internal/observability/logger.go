package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	loggerMu     sync.Mutex
	globalLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// InitLogger configures the process-wide structured logger.
func InitLogger(level string, pretty bool) zerolog.Logger {
	return InitLoggerTo(os.Stdout, level, pretty)
}

// InitLoggerTo is InitLogger with an explicit sink.
func InitLoggerTo(out io.Writer, level string, pretty bool) zerolog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	zerolog.SetGlobalLevel(parseLevel(level))
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	globalLogger = zerolog.New(out).With().Timestamp().Logger()
	log.Logger = globalLogger
	return globalLogger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the process-wide logger.
func Logger() zerolog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	return globalLogger
}

// SessionLogger returns a child logger tagged with a session id.
func SessionLogger(sessionID string) zerolog.Logger {
	return Logger().With().Str("session_id", sessionID).Logger()
}
