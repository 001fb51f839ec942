// Package logger provides structured logging with file and console output.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Field names shared by every log line of a digest run.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldTopicID   = "topic_id"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	zerolog.Logger
}

// New creates a logger writing to the console and, when logFile is set, to
// logFile as JSON lines. The file is appended to so daily runs accumulate in one log.
func New(level string, logFile string) (*Logger, error) {
	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"},
	}
	if logFile != "" {
		file, err := openLogFile(logFile)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	return build(zerolog.MultiLevelWriter(writers...), parseLevel(level)), nil
}

// NewWriter creates a logger that writes JSON lines to w. Used by tests
// that assert on log output.
func NewWriter(w io.Writer, level zerolog.Level) *Logger {
	return build(w, level)
}

func build(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// parseLevel falls back to info for empty or unknown levels.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.With().Str(FieldComponent, name).Logger()}
}

// WithRun returns a child logger tagging every line with the run id, so the
// lines of one extraction can be grepped out of the shared daily log.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{l.With().Str(FieldRunID, runID).Logger()}
}

// WithTopic returns a child logger tagged with a forum topic id.
func (l *Logger) WithTopic(topicID int) *Logger {
	return &Logger{l.With().Int(FieldTopicID, topicID).Logger()}
}

// Global is the global logger instance for convenience.
var Global *Logger

// Init initializes the global logger.
func Init(level string, logFile string) error {
	l, err := New(level, logFile)
	if err != nil {
		return err
	}
	Global = l
	return nil
}

// Get returns the global logger, or a no-op logger if Init was not called.
func Get() *Logger {
	if Global == nil {
		return Nop()
	}
	return Global
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}
