package console

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger writes human-readable log lines to stderr via charmbracelet/log.
type Logger struct {
	logger *log.Logger
}

// Params configures the console backend.
type Params struct {
	// Debug lowers the minimum level from INFO to DEBUG.
	Debug bool
	// Prefix is prepended to every line, typically the binary name.
	Prefix string
}

// New creates a console logger writing to stderr with timestamps.
func New(params Params) *Logger {
	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	return &Logger{
		logger: log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Level:           level,
			Prefix:          params.Prefix,
		}),
	}
}

func (c *Logger) Log(message string, keyvals ...any) {
	c.logger.Print(message, keyvals...)
}

func (c *Logger) Debug(message string, keyvals ...any) {
	c.logger.Debug(message, keyvals...)
}

func (c *Logger) Info(message string, keyvals ...any) {
	c.logger.Info(message, keyvals...)
}

func (c *Logger) Warn(message string, keyvals ...any) {
	c.logger.Warn(message, keyvals...)
}

func (c *Logger) Error(message string, keyvals ...any) {
	c.logger.Error(message, keyvals...)
}

// Fatal logs the message and exits the process with a non-zero status.
func (c *Logger) Fatal(message string, keyvals ...any) {
	c.logger.Fatal(message, keyvals...)
}
