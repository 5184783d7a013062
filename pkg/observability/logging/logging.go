// Package logging provides the process-wide structured logger.
//
// All packages log through the package-level helpers (Debugf, Infof, Warnf,
// Errorf) so the backing logger can be swapped once at startup without
// threading a logger through every constructor.
package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger atomic.Pointer[zap.SugaredLogger]

func init() {
	l, err := newProduction("info")
	if err != nil {
		l = zap.NewNop().Sugar()
	}
	logger.Store(l)
}

func newProduction(level string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Init replaces the process logger with one at the given level
// ("debug", "info", "warn", "error"). Safe for concurrent use.
func Init(level string) error {
	l, err := newProduction(level)
	if err != nil {
		return err
	}
	logger.Store(l)
	return nil
}

// SetLogger replaces the process logger, mainly for tests.
func SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	logger.Store(l)
}

// Sync flushes buffered log entries.
func Sync() error {
	return logger.Load().Sync()
}

func Debugf(format string, args ...interface{}) {
	logger.Load().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	logger.Load().Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	logger.Load().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Load().Errorf(format, args...)
}
