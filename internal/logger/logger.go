package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Logger provides structured logging with levels

type Logger struct {
	MinLevel LogLevel
	mu       sync.Mutex
	zl       zerolog.Logger
}

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// New builds a logger writing JSON lines to w. format "console" switches to the
// human readable zerolog console writer.
func New(w io.Writer, format string, level LogLevel) *Logger {
	if w == nil {
		w = os.Stdout
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05.000"}
	}
	return &Logger{
		MinLevel: level,
		zl:       zerolog.New(w).With().Timestamp().Logger(),
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return &Logger{MinLevel: LevelError, zl: zerolog.Nop()}
}

// ParseLevel maps debug/info/warn/error to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Zerolog exposes the underlying logger for middleware that wants typed fields.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}
