// Package logging provides the levelled logger used by the CLI and the
// training loop.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// Level controls output verbosity.
type Level int

const (
	LevelQuiet   Level = 0
	LevelNormal  Level = 1
	LevelVerbose Level = 2
	LevelDebug   Level = 3
)

var tagColors = map[string]string{
	"INF": "\x1b[36m",
	"WRN": "\x1b[33m",
	"VRB": "\x1b[90m",
	"DBG": "\x1b[90m",
	"ERR": "\x1b[31m",
}

// Logger writes levelled messages with optional timestamps and
// colourised level tags.
type Logger struct {
	level      Level
	output     io.Writer
	mu         sync.Mutex
	timestamps bool
	color      bool
}

// New returns a Logger writing to stderr that prints messages at or
// below verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func New(verbosity int) *Logger {
	l := &Logger{
		level:      Level(verbosity),
		timestamps: verbosity >= int(LevelDebug),
	}
	l.SetOutput(os.Stderr)
	return l
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return &Logger{level: LevelQuiet, output: io.Discard}
}

// SetOutput overrides the output writer. Colour is enabled only when w is
// a terminal.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.color = false
	if f, ok := w.(*os.File); ok {
		l.color = term.IsTerminal(int(f.Fd()))
	}
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) { l.timestamps = on }

// Level returns the current log level.
func (l *Logger) Level() Level { return l.level }

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LevelNormal {
		l.write("INF", format, args...)
	}
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LevelNormal {
		l.write("WRN", format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LevelVerbose {
		l.write("VRB", format, args...)
	}
}

// Debug prints when verbosity ≥ 3.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LevelDebug {
		l.write("DBG", format, args...)
	}
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("ERR", format, args...)
}

func (l *Logger) write(tag, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.output == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	label := "[" + tag + "]"
	if l.color {
		label = tagColors[tag] + label + "\x1b[0m"
	}
	if l.timestamps {
		ts := time.Now().Format("15:04:05.000")
		fmt.Fprintf(l.output, "%s %s %s\n", ts, label, msg)
	} else {
		fmt.Fprintf(l.output, "%s %s\n", label, msg)
	}
}
