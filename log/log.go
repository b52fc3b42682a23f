// Package log implements support for structured logging.
package log

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// log.DefaultCaller + 2 for the leveling method and emit.
const defaultCallerUnwind = 5

// Logger is a structured logger.
type Logger struct {
	base         log.Logger // Without the ts/caller prefixes.
	context      []interface{}
	callerUnwind int
	logger       log.Logger
	level        Level
	module       string
}

// NewDefaultLogger initializes a new logger instance with default settings.
// For usage outside tests, prefer RootLogger() from package `cmd/common`.
func NewDefaultLogger(module string) *Logger {
	logger, err := NewLogger(module, os.Stdout, FmtJSON, LevelInfo)
	if err != nil {
		// Shouldn't happen as NewLogger can only fail if an invalid format is provided.
		panic(err)
	}
	return logger
}

// NewLogger initializes a new logger instance.
func NewLogger(module string, w io.Writer, format Format, lvl Level) (*Logger, error) {
	var base log.Logger
	switch format {
	case FmtLogfmt:
		base = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case FmtJSON:
		base = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("log: unsupported log format: %v", format)
	}

	l := &Logger{
		base:         base,
		callerUnwind: defaultCallerUnwind,
		level:        lvl,
		module:       module,
	}
	l.rebuild()
	return l, nil
}

func (l *Logger) rebuild() {
	logger := log.WithPrefix(l.base,
		"ts", log.DefaultTimestampUTC,
		"caller", log.Caller(l.callerUnwind),
	)
	if len(l.context) > 0 {
		logger = log.With(logger, l.context...)
	}
	l.logger = logger
}

func (l *Logger) clone() *Logger {
	c := *l
	c.context = append([]interface{}(nil), l.context...)
	return &c
}

func (l *Logger) emit(lvl Level, msg string, keyvals []interface{}) {
	if l.level > lvl {
		return
	}
	keyvals = append([]interface{}{"module", l.module, "msg", msg}, keyvals...)
	switch lvl {
	case LevelDebug:
		_ = level.Debug(l.logger).Log(keyvals...)
	case LevelInfo:
		_ = level.Info(l.logger).Log(keyvals...)
	case LevelWarn:
		_ = level.Warn(l.logger).Log(keyvals...)
	default:
		_ = level.Error(l.logger).Log(keyvals...)
	}
}

// Debug logs the message and key value pairs at the Debug log level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.emit(LevelDebug, msg, keyvals)
}

// Info logs the message and key value pairs at the Info log level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.emit(LevelInfo, msg, keyvals)
}

// Warn logs the message and key value pairs at the Warn log level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.emit(LevelWarn, msg, keyvals)
}

// Error logs the message and key value pairs at the Error log level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.emit(LevelError, msg, keyvals)
}

// Since logs msg at the Debug level with the time elapsed since start.
func (l *Logger) Since(msg string, start time.Time, keyvals ...interface{}) {
	l.emit(LevelDebug, msg, append(keyvals, "elapsed", time.Since(start).String()))
}

// With returns a clone of the logger with the provided key/value pairs
// added as context for all subsequent logs.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	c := l.clone()
	c.context = append(c.context, keyvals...)
	c.rebuild()
	return c
}

// WithModule returns a clone of the logger with the provided module
// added as context for all subsequent logs.
func (l *Logger) WithModule(module string) *Logger {
	c := l.clone()
	c.module = module
	return c
}

// WithCallerUnwind returns a clone of the logger that reports the caller
// `unwind` frames up the stack. Needed when the logger is driven through
// adapters such as WriterIntoLogger.
func (l *Logger) WithCallerUnwind(unwind int) *Logger {
	c := l.clone()
	c.callerUnwind = unwind
	c.rebuild()
	return c
}

// Level is the logging level.
func (l *Logger) Level() Level {
	return l.level
}

type loggerWriter struct {
	logger Logger
}

// Write logs every line of p at the Info level.
func (w loggerWriter) Write(p []byte) (int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(p))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			w.logger.emit(LevelInfo, line, nil)
		}
	}
	return len(p), nil
}

// WriterIntoLogger adapts a logger to io.Writer, e.g. for libraries that
// log through the standard library logger.
func WriterIntoLogger(logger Logger) io.Writer {
	return loggerWriter{logger: logger}
}
