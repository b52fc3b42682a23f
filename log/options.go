package log

import (
	"fmt"
	"strings"
)

// Format is a logging format. It implements the pflag.Value interface.
type Format uint

const (
	// FmtLogfmt is the "logfmt" logging format.
	FmtLogfmt Format = iota
	// FmtJSON is the JSON logging format.
	FmtJSON
)

var formatNames = []string{FmtLogfmt: "logfmt", FmtJSON: "json"}

func (f *Format) String() string {
	if int(*f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", *f)
	}
	return formatNames[*f]
}

// Set parses a format name, case-insensitively. An empty string leaves the
// format unchanged.
func (f *Format) Set(s string) error {
	if s == "" {
		return nil
	}
	for i, name := range formatNames {
		if strings.EqualFold(s, name) {
			*f = Format(i)
			return nil
		}
	}
	return fmt.Errorf("logging: invalid log format: '%s'", s)
}

func (f *Format) Type() string {
	return "[" + strings.Join(formatNames, ",") + "]"
}

// Level is a log level. It implements the pflag.Value interface.
type Level uint

const (
	// LevelDebug is the log level for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the log level for informative messages.
	LevelInfo
	// LevelWarn is the log level for warning messages.
	LevelWarn
	// LevelError is the log level for error messages.
	LevelError
)

var levelNames = []string{LevelDebug: "debug", LevelInfo: "info", LevelWarn: "warn", LevelError: "error"}

func (l *Level) String() string {
	if int(*l) >= len(levelNames) {
		return fmt.Sprintf("Level(%d)", *l)
	}
	return levelNames[*l]
}

// Set parses a level name, case-insensitively. An empty string leaves the
// level unchanged.
func (l *Level) Set(s string) error {
	if s == "" {
		return nil
	}
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("logging: invalid log level: '%s'", s)
}

func (l *Level) Type() string {
	return "[" + strings.Join(levelNames, ",") + "]"
}
