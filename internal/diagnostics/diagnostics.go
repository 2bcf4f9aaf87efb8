// Package diagnostics is the interpreter's logging surface.
//
// A script-level fault is never allowed to abort the interpreter: it
// is logged here and execution proceeds. Every entry carries a channel
// (general engine messages vs. script-authored ones) and, where the
// call site has one, a "file:line" source tag produced by a code
// block's line mapper.
package diagnostics

import (
	log "github.com/sirupsen/logrus"
)

// Channel distinguishes engine-internal diagnostics from ones
// attributable to the running script.
type Channel string

const (
	General Channel = "general"
	Script  Channel = "script"
)

// Logger is the interpreter's diagnostic sink. It wraps a logrus entry
// so host applications can redirect, filter, or collect interpreter
// output the same way they would any other logrus-based component.
type Logger struct {
	entry *log.Entry
}

// New creates a Logger writing through the given logrus logger. Passing
// nil uses logrus's standard logger, matching how most host embedders
// of this kind of engine don't bother constructing a dedicated one.
func New(base *log.Logger) *Logger {
	if base == nil {
		base = log.StandardLogger()
	}
	return &Logger{entry: log.NewEntry(base)}
}

// Printf logs on the success path. The interpreter only calls this when
// tracing is enabled; it never prints on a silent success path.
func (l *Logger) Printf(ch Channel, source, format string, args ...interface{}) {
	l.entry.WithFields(log.Fields{"channel": ch, "source": source}).Infof(format, args...)
}

// Warnf logs a recoverable diagnostic: unresolved variables, unknown
// functions, wrong-arity calls, and the like. Execution always
// continues after a Warnf.
func (l *Logger) Warnf(ch Channel, source, format string, args ...interface{}) {
	l.entry.WithFields(log.Fields{"channel": ch, "source": source}).Warnf(format, args...)
}

// Errorf logs a more severe recoverable diagnostic: object
// construction failures and similar. Like Warnf, this never aborts the
// run — where the failing opcode carries a compiler-supplied fail-jump
// target, the caller takes that path afterward.
func (l *Logger) Errorf(ch Channel, source, format string, args ...interface{}) {
	l.entry.WithFields(log.Fields{"channel": ch, "source": source}).Errorf(format, args...)
}
