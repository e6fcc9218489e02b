// Package logger
// Author: momentics <momentics@gmail.com>
//
// Leveled, printf-style logging facade over zap.

package logger

import (
	"go.uber.org/zap"
)

// Logger is the logging surface used by server, client and tools.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	// With returns a child logger carrying key/value pairs.
	With(keysAndValues ...any) Logger
	Sync() error
}

// SetLevel changes the minimum level of a logger built by NewZapLogger and
// of every logger derived from it through With. It reports false for
// loggers whose level is fixed, such as those from FromZap or Nop.
func SetLevel(l Logger, level Level) bool {
	z, ok := l.(*zapLogger)
	if !ok || z.level == nil {
		return false
	}
	z.level.SetLevel(level.toZapLevel())
	return true
}

type zapLogger struct {
	s     *zap.SugaredLogger
	level *zap.AtomicLevel
}

// FromZap adapts an existing zap logger, e.g. one from zaptest.
func FromZap(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return FromZap(zap.NewNop())
}

func (z *zapLogger) Debugf(format string, args ...any) { z.s.Debugf(format, args...) }
func (z *zapLogger) Infof(format string, args ...any)  { z.s.Infof(format, args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.s.Warnf(format, args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.s.Errorf(format, args...) }

func (z *zapLogger) With(keysAndValues ...any) Logger {
	return &zapLogger{s: z.s.With(keysAndValues...), level: z.level}
}

func (z *zapLogger) Sync() error { return z.s.Sync() }
