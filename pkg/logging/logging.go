package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NoFile disables the log file when used as Options.File
const NoFile = "-"

// Options tunes Setup beyond the verbosity level
type Options struct {
	// Console receives human-readable lines; os.Stderr when nil
	Console io.Writer

	// File is the log file path; empty selects the XDG state home
	File string

	NoColor bool
}

// SetupLogger configures the global logger with console and file output
func SetupLogger(verbosity int) {
	Setup(verbosity, Options{})
}

// Setup configures the global logger. Console lines follow the verbosity
// level; the log file, when one can be opened, receives JSON lines.
func Setup(verbosity int, opts Options) {
	zerolog.SetGlobalLevel(Level(verbosity))

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.Kitchen,
		NoColor:    opts.NoColor,
	}}

	logFile := opts.File
	if logFile == "" {
		logFile = getLogFilePath()
	}
	var fileErr error
	if logFile != NoFile {
		var fh *os.File
		if fh, fileErr = setupLogFile(logFile); fileErr == nil {
			writers = append(writers, fh)
		}
	}

	log.Logger = zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()
	if fileErr != nil {
		log.Warn().Err(fileErr).Str("path", logFile).Msg("Failed to create log file, logging to console only")
	}
	if verbosity >= 2 {
		log.Logger = log.Logger.With().Caller().Logger()
	}

	log.Debug().Int("verbosity", verbosity).Str("logFile", logFile).Msg("Logger initialized")
}

// Level maps the -v count to a zerolog level
func Level(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.WarnLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// GetLogger returns a contextualized logger with the given name
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// ForPackage tags logger with the package being installed
func ForPackage(logger zerolog.Logger, id, version string) zerolog.Logger {
	return logger.With().Str("package", id).Str("version", version).Logger()
}

func getLogFilePath() string {
	return filepath.Join(xdg.StateHome, "modman", "modman.log")
}

func setupLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// LogOperationStart logs the start of an operation and returns a function to log its completion
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().Str("operation", operation).Msg("Operation started")

	return func() {
		logger.Debug().
			Str("operation", operation).
			Dur("duration", time.Since(start)).
			Msg("Operation completed")
	}
}

// Size formats a byte count for log fields
func Size(n int) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
