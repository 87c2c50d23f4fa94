// Package kdilog is a thin, package-level wrapper around zap so the
// rest of the engine can log without threading a *zap.Logger through
// every constructor — matching the teacher's sparse, function-call
// logging style (fmt.Printf at state-change points only) but with
// structured fields and levels.
package kdilog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger = mustNop()
)

func mustNop() *zap.Logger { return zap.NewNop() }

// Configure installs the process-wide logger. dev selects a
// human-readable console encoder (for tests/CLIs); otherwise JSON
// output at the given level is used.
func Configure(dev bool, level zapcore.Level) error {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Field aliases so callers only need to import this package.
type Field = zap.Field

func String(key, val string) Field   { return zap.String(key, val) }
func Int(key string, val int) Field  { return zap.Int(key, val) }
func Int64(key string, val int64) Field { return zap.Int64(key, val) }
func Err(err error) Field            { return zap.Error(err) }

func Debug(msg string, fields ...Field) { current().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { current().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { current().Warn(msg, fields...) }
func Error(msg string, fields ...Field) { current().Error(msg, fields...) }

// Sync flushes any buffered log entries; call before process exit.
func Sync() error { return current().Sync() }
