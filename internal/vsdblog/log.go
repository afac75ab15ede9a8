// Package vsdblog provides structured logging for VSDB.
package vsdblog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the package-wide logger instance. VSDB is embedded in host
// processes, so it defaults to a quiet level; call Init to raise verbosity
// or redirect output.
var Logger zerolog.Logger

// Component loggers for the core subsystems.
var (
	Backend     zerolog.Logger
	Allocator   zerolog.Logger
	Ledger      zerolog.Logger
	Store       zerolog.Logger
	Collections zerolog.Logger
	Merkle      zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stderr, "warn")
	initComponentLoggers()
}

// Init initializes the logger with the given configuration. When file is
// non-empty, logs are written to both the console (colored or JSON depending
// on jsonOutput) and the file (always JSON for machine parsing).
func Init(level string, jsonOutput bool, file string) error {
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}

		var consoleWriter io.Writer
		if jsonOutput {
			consoleWriter = os.Stderr
		} else {
			consoleWriter = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		}

		multi := zerolog.MultiLevelWriter(consoleWriter, f)
		Logger = zerolog.New(multi).Level(parseLevel(level)).With().Timestamp().Logger()
	} else if jsonOutput {
		Logger = NewJSONLogger(os.Stderr, level)
	} else {
		Logger = NewConsoleLogger(os.Stderr, level)
	}

	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(output).Level(parseLevel(level)).With().Timestamp().Logger()
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}

func initComponentLoggers() {
	Backend = Logger.With().Str("component", "backend").Logger()
	Allocator = Logger.With().Str("component", "allocator").Logger()
	Ledger = Logger.With().Str("component", "ledger").Logger()
	Store = Logger.With().Str("component", "store").Logger()
	Collections = Logger.With().Str("component", "collections").Logger()
	Merkle = Logger.With().Str("component", "merkle").Logger()
}
