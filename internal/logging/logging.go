package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"fileman/internal/config"
)

const logFile = "fileman.log"

// ConsoleLevel maps the -v count to the level shown on the terminal
func ConsoleLevel(verbosity int) zerolog.Level {
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

// New builds a logger writing human-readable lines to console and JSON lines
// to <cfg.Dir>/fileman.log. Each sink filters at its own level. The returned
// closer releases the log file; it is never nil.
func New(cfg config.LoggingCfg, verbosity int, console io.Writer) (zerolog.Logger, io.Closer) {
	consoleLevel := ConsoleLevel(verbosity)
	writers := []io.Writer{
		&zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
				Out:        console,
				TimeFormat: time.Kitchen,
				NoColor:    !isTerminal(console),
			}},
			Level: consoleLevel,
		},
	}
	minLevel := consoleLevel

	var closer io.Closer = nopCloser{}
	var fileErr error
	var path string
	if cfg.Dir != "" {
		fileLevel, err := zerolog.ParseLevel(cfg.Level)
		if err != nil || cfg.Level == "" {
			fileLevel = zerolog.InfoLevel
		}

		var f *os.File
		path = filepath.Join(cfg.Dir, logFile)
		f, fileErr = openLogFile(path, cfg.RotationDays)
		if fileErr == nil {
			closer = f
			writers = append(writers, &zerolog.FilteredLevelWriter{
				Writer: zerolog.LevelWriterAdapter{Writer: f},
				Level:  fileLevel,
			})
			if fileLevel < minLevel {
				minLevel = fileLevel
			}
		}
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(minLevel).
		With().Timestamp().Logger()
	if verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}

	if fileErr != nil {
		logger.Warn().Err(fileErr).Str("path", path).Msg("failed to open log file, logging to console only")
	}
	logger.Debug().Int("verbosity", verbosity).Str("log_file", path).Msg("logger initialized")
	return logger, closer
}

func openLogFile(path string, rotationDays int) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	if rotationDays <= 0 {
		rotationDays = 30
	}
	rotateLogsIfNeeded(path, rotationDays, time.Now())

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// rotateLogsIfNeeded renames the log file once it is older than rotationDays
// and prunes rotated files that have been kept for a further window
func rotateLogsIfNeeded(logPath string, rotationDays int, now time.Time) {
	info, err := os.Stat(logPath)
	if err != nil {
		// Log file doesn't exist yet, nothing to rotate
		return
	}

	cutoffTime := now.AddDate(0, 0, -rotationDays)
	if info.ModTime().Before(cutoffTime) {
		timestamp := info.ModTime().Format("20060102-150405")
		rotatedPath := logPath + "." + timestamp

		if err := os.Rename(logPath, rotatedPath); err != nil {
			return
		}
		cleanupOldLogs(logPath, cutoffTime.AddDate(0, 0, -rotationDays))
	}
}

// cleanupOldLogs removes rotated log files last modified before cutoff
func cleanupOldLogs(logPath string, cutoff time.Time) []string {
	logDir := filepath.Dir(logPath)
	prefix := filepath.Base(logPath) + "."

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return nil
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			fullPath := filepath.Join(logDir, entry.Name())
			if err := os.Remove(fullPath); err == nil {
				removed = append(removed, fullPath)
			}
		}
	}
	return removed
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
