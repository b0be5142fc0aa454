package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type Logger interface {
	Name() string

	Debugf(format string, values ...interface{})
	Infof(format string, values ...interface{})
	Warnf(format string, values ...interface{})
	Errorf(format string, values ...interface{})
	Panicf(format string, values ...interface{})
	Fatalf(format string, values ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Named(name string) Logger
	With(args ...interface{}) Logger
	Sync() error
}

var _ Logger = (*logger)(nil)

type logger struct {
	*zap.SugaredLogger
	name string
}

// New returns a production zap logger at the given level ("debug", "info", ...).
func New(level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &logger{SugaredLogger: z.Sugar()}, nil
}

// Test returns a logger that writes through t.Log at debug level.
func Test(tb testing.TB) Logger {
	return &logger{SugaredLogger: zaptest.NewLogger(tb).Sugar()}
}

// TestObserved returns a logger that also records entries at or above lvl.
func TestObserved(tb testing.TB, lvl zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(lvl)
	tee := zapcore.NewTee(zaptest.NewLogger(tb).Core(), core)
	return &logger{SugaredLogger: zap.New(tee).Sugar()}, logs
}

// Nop discards everything.
func Nop() Logger {
	return &logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *logger) Name() string { return l.name }

func (l *logger) Named(name string) Logger {
	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	return &logger{SugaredLogger: l.SugaredLogger.Named(name), name: full}
}

// With returns a logger that adds the key/value pairs to every entry.
func (l *logger) With(args ...interface{}) Logger {
	return &logger{SugaredLogger: l.SugaredLogger.With(args...), name: l.name}
}

// Named is a nil-safe helper for components that accept an optional logger.
func Named(l Logger, name string) Logger {
	if l == nil {
		return Nop().Named(name)
	}
	return l.Named(name)
}
