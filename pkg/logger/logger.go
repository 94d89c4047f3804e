package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
)

// InitLogger replaces the process logger. pretty selects zap's development
// (console) encoding; otherwise JSON is emitted.
func InitLogger(level string, pretty bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if pretty {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Set(l.Sugar())
	return nil
}

// Set installs l as the process logger. Tests use it with zaptest or
// zap.NewNop.
func Set(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l
}

// L returns the process logger, initialising a production logger on first
// use.
func L() *zap.SugaredLogger {
	mu.RLock()
	l := sugar
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init()
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Init installs a production logger at info level if none is set.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	if sugar != nil {
		return
	}
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	sugar = l.Sugar()
}

// Close flushes buffered entries.
func Close() {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
}

// With returns a child logger carrying the given key/value pairs.
func With(keysAndValues ...any) *zap.SugaredLogger {
	return L().With(keysAndValues...)
}

func Info(args ...any) { L().Info(args...) }

func Infof(format string, v ...any) { L().Infof(format, v...) }

func Error(args ...any) { L().Error(args...) }

func Errorf(format string, v ...any) { L().Errorf(format, v...) }

func Warn(args ...any) { L().Warn(args...) }

func Warnf(format string, v ...any) { L().Warnf(format, v...) }
