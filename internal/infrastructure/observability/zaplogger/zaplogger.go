// Package zaplogger adapts *zap.Logger to observability.Logger.
package zaplogger

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is safe for concurrent use; With returns a child and never mutates the receiver.
type Logger struct {
	z *zap.Logger
}

var _ observability.Logger = (*Logger)(nil)

// New wraps base (zap.L() when nil), usually the logger built by logging.NewLogger.
func New(base *zap.Logger, fixed ...observability.Field) *Logger {
	if base == nil {
		base = zap.L()
	}
	return &Logger{z: base.With(zapFields(fixed)...)}
}

func (l *Logger) With(fields ...observability.Field) observability.Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{z: l.z.With(zapFields(fields)...)}
}

func (l *Logger) Debug(msg string, fields ...observability.Field) { l.log(zapcore.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...observability.Field)  { l.log(zapcore.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...observability.Field)  { l.log(zapcore.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...observability.Field) { l.log(zapcore.ErrorLevel, msg, fields) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.z.Sync() }

// log converts fields only when the level is enabled.
func (l *Logger) log(level zapcore.Level, msg string, fields []observability.Field) {
	if ce := l.z.Check(level, msg); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func zapFields(fs []observability.Field) []zap.Field {
	if len(fs) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fs))
	for _, f := range fs {
		out = append(out, zapField(f))
	}
	return out
}

func zapField(f observability.Field) zap.Field {
	switch v := f.Value.(type) {
	case string:
		return zap.String(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case float64:
		return zap.Float64(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case error:
		return zap.NamedError(f.Key, v)
	case fmt.Stringer:
		return zap.Stringer(f.Key, v)
	default:
		return zap.Any(f.Key, v)
	}
}
