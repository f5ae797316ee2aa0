// Package logger provides the level-filtered logging used across the feeder.
// It wraps the standard `log` package so every component prints the same "[LEVEL] message" lines.
package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// LogLevel is a type representing the logging level.
type LogLevel int32

const (
	// LevelDebug prints per-chunk and per-query detail.
	LevelDebug LogLevel = iota
	// LevelInfo prints one line per extraction, load and refresh.
	LevelInfo
	// LevelWarn prints recoverable anomalies (e.g. an artifact that could not be removed).
	LevelWarn
	// LevelError prints failed runs.
	LevelError
	// LevelFatal terminates the process after printing.
	LevelFatal
)

// String returns the upper-case name of the level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LogLevel(%d)", int32(l))
	}
}

// logLevel is the currently set global log level.
var logLevel atomic.Int32

func init() {
	logLevel.Store(int32(LevelInfo))
}

// ParseLevel converts a level name ("DEBUG", "INFO", "WARN", "ERROR", "FATAL", case-insensitive) to a LogLevel.
// The boolean is false for unknown names.
func ParseLevel(level string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// SetLogLevel sets the global log level.
// An unknown value falls back to INFO and prints a notice.
func SetLogLevel(level string) {
	parsed, ok := ParseLevel(level)
	if !ok {
		fmt.Printf("Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
	}
	logLevel.Store(int32(parsed))
}

// GetLogLevel returns the current global log level.
func GetLogLevel() LogLevel {
	return LogLevel(logLevel.Load())
}

func enabled(l LogLevel) bool {
	return LogLevel(logLevel.Load()) <= l
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		log.Printf("[DEBUG] "+format, v...)
	}
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		log.Printf("[INFO] "+format, v...)
	}
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		log.Printf("[WARN] "+format, v...)
	}
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	if enabled(LevelError) {
		log.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf formats and outputs a FATAL level log message, then terminates the program with os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
