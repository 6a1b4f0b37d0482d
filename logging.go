package glowstage

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger is the engine-wide logging surface. Scoped returns a child whose
// lines carry the scope after the prefix, e.g. "[glowstage/effects]".
type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Scoped(scope string) Logger
}

// logSink is shared by a logger and all of its scoped children.
type logSink struct {
	mu          sync.Mutex
	debugAll    bool
	debugScopes map[string]bool
	out         *log.Logger
	err         *log.Logger
}

// DefaultLogger writes info and debug to stdout, warnings and errors to
// stderr. Debug output can be enabled globally or for single scopes.
type DefaultLogger struct {
	sink  *logSink
	tag   string
	scope string
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return newLoggerTo(os.Stdout, os.Stderr, prefix, debug)
}

func newLoggerTo(stdout, stderr io.Writer, prefix string, debug bool) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{
		sink: &logSink{
			debugAll:    debug,
			debugScopes: make(map[string]bool),
			out:         log.New(stdout, "", flags),
			err:         log.New(stderr, "", flags),
		},
		tag: prefix,
	}
}

func (l *DefaultLogger) Scoped(scope string) Logger {
	tag := scope
	if l.tag != "" {
		tag = l.tag + "/" + scope
	}
	return &DefaultLogger{sink: l.sink, tag: tag, scope: scope}
}

// EnableDebugScope turns on debug lines for one scope only.
func (l *DefaultLogger) EnableDebugScope(scope string) {
	l.sink.mu.Lock()
	l.sink.debugScopes[scope] = true
	l.sink.mu.Unlock()
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.debugAll || (l.scope != "" && l.sink.debugScopes[l.scope])
}

// SetDebug switches debug output for every scope sharing this sink.
func (l *DefaultLogger) SetDebug(enabled bool) {
	l.sink.mu.Lock()
	l.sink.debugAll = enabled
	l.sink.mu.Unlock()
}

func (l *DefaultLogger) line(level, format string, args []any) string {
	msg := fmt.Sprintf(format, args...)
	if l.tag == "" {
		return level + ": " + msg
	}
	return "[" + l.tag + "] " + level + ": " + msg
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if l.DebugEnabled() {
		l.sink.out.Print(l.line("DEBUG", format, args))
	}
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.sink.out.Print(l.line("INFO", format, args))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.sink.err.Print(l.line("WARN", format, args))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.sink.err.Print(l.line("ERROR", format, args))
}

// LoggingModule installs a DefaultLogger. DebugScopes enables debug output
// for the named scopes ("effects", "mascot", "wgpu", "profiler") without
// turning it on everywhere.
type LoggingModule struct {
	Prefix      string
	Debug       bool
	DebugScopes []string
}

func (m LoggingModule) Install(app *App, cmd *Commands) {
	logger := NewDefaultLogger(m.Prefix, m.Debug)
	for _, scope := range m.DebugScopes {
		logger.EnableDebugScope(scope)
	}
	cmd.AddResources(logger)
}

type nopLogger struct{}

func NewNopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) DebugEnabled() bool {
	return false
}

func (nopLogger) SetDebug(bool) {}

func (nopLogger) Debugf(string, ...any) {}

func (nopLogger) Infof(string, ...any) {}

func (nopLogger) Warnf(string, ...any) {}

func (nopLogger) Errorf(string, ...any) {}

func (n nopLogger) Scoped(string) Logger {
	return n
}

// logEffect writes one lifecycle line for a live effect, tagged with its kind
// and registry id.
func logEffect(l Logger, e *LiveEffect, event string, live int) {
	if !l.DebugEnabled() {
		return
	}
	l.Debugf("%v#%d %s (lifetime %v, %d live)", e.Descriptor.Kind, e.Entity, event, e.Descriptor.Lifetime, live)
}

// Logger returns the first Logger resource if present, otherwise a no-op
// logger. Never returns nil.
func (app *App) Logger() Logger {
	if app == nil {
		return NewNopLogger()
	}
	for _, r := range app.resources {
		if l, ok := r.(Logger); ok {
			return l
		}
	}
	return NewNopLogger()
}
