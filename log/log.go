// Package log is the structured logging facade used throughout the
// overlay: every component logs through the Logger interface so call
// sites never import zap directly, matching the teacher's own
// luxfi/log wrapper around go.uber.org/zap.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal structured-logging surface components depend
// on. Additional context is always attached via With, never via
// formatted strings, so a single log line can be correlated across the
// reactor, routing table, and task engine by node id / remote address /
// transaction id fields.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

// New builds a production-style (JSON, sampled) or development-style
// (console, unsampled) Logger depending on development.
func New(level zapcore.Level, development bool) (Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: l}, nil
}

// Wrap adapts an existing *zap.Logger, for an embedding application
// that already owns its own zap configuration.
func Wrap(l *zap.Logger) Logger {
	return &zapLogger{l: l}
}

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}

type nopLogger struct{}

// NewNop returns a Logger that discards everything, for unit tests that
// don't assert on log output (mirrors the teacher's NewNoOpLogger).
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...zap.Field)  {}
func (nopLogger) Info(string, ...zap.Field)   {}
func (nopLogger) Warn(string, ...zap.Field)   {}
func (nopLogger) Error(string, ...zap.Field)  {}
func (nopLogger) With(...zap.Field) Logger    { return nopLogger{} }
