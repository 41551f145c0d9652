// Package log provides the per-package module logger used across this
// repository: one logger per package, key/value call sites, no global
// logging framework leaking into callers.
package log

import (
	"go.uber.org/zap"
)

var base *zap.SugaredLogger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	base = l.Sugar()
}

// Logger is a module-scoped, key/value structured logger.
type Logger struct {
	module string
}

// NewModuleLogger returns a logger tagged with the given module name, e.g.
// NewModuleLogger("gatekeeper").
func NewModuleLogger(module string) *Logger {
	return &Logger{module: module}
}

func (l *Logger) with(kv []interface{}) *zap.SugaredLogger {
	return base.With("module", l.module).With(kv...)
}

func (l *Logger) Error(msg string, kv ...interface{}) { l.with(kv).Error(msg) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.with(kv).Warn(msg) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.with(kv).Info(msg) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.with(kv).Debug(msg) }

// SetTestMode switches the backend to a development logger, which does not
// panic on unclean shutdown and is quieter in test runs.
func SetTestMode() {
	l, err := zap.NewDevelopment()
	if err != nil {
		return
	}
	base = l.Sugar()
}
