// Package logger provides leveled structured logging.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a level name to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging.
type Logger struct {
	level  Level
	format string
	logger *slog.Logger
}

var (
	mu            sync.RWMutex
	defaultLogger *Logger
)

func init() {
	initWith(InfoLevel, "text", os.Stderr)
}

// Init initializes the default logger with the specified level and format.
// Format "json" emits one JSON object per line; anything else emits text
// with the calling file and line.
func Init(level string, format string) {
	initWith(ParseLevel(level), strings.ToLower(format), os.Stderr)
}

// SetOutput redirects the default logger, keeping its level and format.
func SetOutput(w io.Writer) {
	mu.RLock()
	l, f := InfoLevel, "text"
	if defaultLogger != nil {
		l, f = defaultLogger.level, defaultLogger.format
	}
	mu.RUnlock()
	initWith(l, f, w)
}

func initWith(level Level, format string, w io.Writer) {
	opts := &slog.HandlerOptions{Level: level.slogLevel()}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		opts.AddSource = true
		h = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	defaultLogger = &Logger{level: level, format: format, logger: slog.New(h)}
	mu.Unlock()
}

func output(level Level, format string, args ...interface{}) {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil || l.level > level {
		return
	}

	// skip runtime.Callers, output, and the exported wrapper
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level.slogLevel(), fmt.Sprintf(format, args...), pcs[0])
	_ = l.logger.Handler().Handle(context.Background(), r)
}

func Debug(format string, args ...interface{}) {
	output(DebugLevel, format, args...)
}

func Info(format string, args ...interface{}) {
	output(InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	output(WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	output(ErrorLevel, format, args...)
}

func Fatal(format string, args ...interface{}) {
	output(ErrorLevel, "FATAL: "+format, args...)
	os.Exit(1)
}
