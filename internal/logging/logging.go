package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel represents the severity of a log message
type LogLevel int32

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel atomic.Int32
	levelOnce    sync.Once
)

// ParseLevel converts a level name into a LogLevel.
// The second return value is false when the name is not recognised.
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// levelFromEnv resolves the level from DEBUG first, then LOG_LEVEL.
func levelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}
	level, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
	return level
}

func initLevel() {
	levelOnce.Do(func() {
		currentLevel.Store(int32(levelFromEnv()))
	})
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return LogLevel(currentLevel.Load())
}

// SetLevel overrides the level picked up from the environment.
func SetLevel(level LogLevel) {
	initLevel()
	currentLevel.Store(int32(level))
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logAt(level LogLevel, tag, format string, args ...interface{}) {
	if GetLevel() <= level {
		log.Printf("["+tag+"] "+format, args...)
	}
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	logAt(LevelDebug, "DEBUG", format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	logAt(LevelInfo, "INFO", format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	logAt(LevelWarn, "WARN", format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	logAt(LevelError, "ERROR", format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
