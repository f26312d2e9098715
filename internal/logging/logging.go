// Package logging provides the bracket-tagged leveled logger used by
// every component of the proxy ([codec], [routing], [session], ...).
package logging

import (
	"log"
	"os"
)

// Logger wraps three stdlib loggers for info/error/debug output,
// each prefixed with a component tag such as "[session]".
type Logger struct {
	tag   string
	info  *log.Logger
	err   *log.Logger
	debug *log.Logger
}

// New returns a Logger tagged for the given component, e.g. New("session").
func New(component string) *Logger {
	tag := "[" + component + "] "
	return &Logger{
		tag:   tag,
		info:  log.New(os.Stdout, tag, log.LstdFlags),
		err:   log.New(os.Stderr, tag, log.LstdFlags),
		debug: log.New(os.Stdout, tag, log.LstdFlags),
	}
}

func (l *Logger) Info(format string, v ...any) {
	l.info.Printf(format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	l.err.Printf(format, v...)
}

func (l *Logger) Debug(format string, v ...any) {
	l.debug.Printf(format, v...)
}
