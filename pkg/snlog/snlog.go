// Package snlog defines the Logger collaborator the core hands progress
// and diagnostics to, and a minimal std-library-backed implementation
// of it. This mirrors the teacher's log.Logger/Loggers split: a plain
// io.Writer wrapper, no structured-logging library, because none of
// the retrieval pack's real third-party loggers (logrus appears only
// in teacher test files, never in its shipped code) are ever wired
// into the teacher's actual binaries — see DESIGN.md.
package snlog

import (
	"fmt"
	"io"
)

// Logger is the sink every core component writes progress and warnings
// to. Nothing in this module reads os.Stdout/os.Stderr directly.
type Logger interface {
	Logln(args ...interface{})
	Logf(format string, args ...interface{})
	// Verbosef only writes when the implementation was constructed with
	// verbose logging enabled; components may call it freely without
	// checking a flag themselves.
	Verbosef(format string, args ...interface{})
	// Warnf always writes, regardless of verbosity - peer-dependency and
	// script-allowlist warnings use this so they surface unconditionally.
	Warnf(format string, args ...interface{})
}

// Std is the default Logger, a thin wrapper over two io.Writers.
type Std struct {
	Out, Err io.Writer
	Verbose  bool
}

// New returns a Std logger writing normal output to out and warnings/errors
// to errw.
func New(out, errw io.Writer, verbose bool) *Std {
	return &Std{Out: out, Err: errw, Verbose: verbose}
}

func (l *Std) Logln(args ...interface{}) {
	fmt.Fprintln(l.Out, args...)
}

func (l *Std) Logf(format string, args ...interface{}) {
	fmt.Fprintf(l.Out, format, args...)
}

func (l *Std) Verbosef(format string, args ...interface{}) {
	if !l.Verbose {
		return
	}
	fmt.Fprintf(l.Out, format, args...)
}

// Warnf always writes to Err, used for peer-dependency and script
// allowlist warnings that should surface regardless of verbosity.
func (l *Std) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(l.Err, format, args...)
}

// Nop discards everything; useful as a default in tests and library
// callers that don't care about progress output.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Logln(args ...interface{})                {}
func (nopLogger) Logf(format string, args ...interface{})  {}
func (nopLogger) Verbosef(format string, args ...interface{}) {}
func (nopLogger) Warnf(format string, args ...interface{}) {}
