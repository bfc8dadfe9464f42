package logger

import (
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Stage names used as logger names, one per pipeline component
const (
	StageSource     = "source"
	StageExtract    = "extract"
	StageAssign     = "assign"
	StageFacilities = "facilities"
	StageLoader     = "loader"
	StageMetrics    = "metrics"
)

// Options selects level and sinks of the process logger
type Options struct {
	Verbose bool
	File    string // JSON log file, rotated by lumberjack; empty disables it
}

var (
	mu   sync.RWMutex
	log  *zap.Logger
	once sync.Once
)

// Init installs the process logger. Only the first call has an effect.
func Init(opts Options) {
	once.Do(func() {
		l := New(opts)
		mu.Lock()
		log = l
		mu.Unlock()
	})
}

// New builds a logger writing human readable lines to stderr, so command
// output on stdout stays clean, plus JSON lines to opts.File when set
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	encoderConfig := zap.NewProductionEncoderConfig()
	if opts.Verbose {
		level = zapcore.DebugLevel
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level),
	}
	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    50, // MB
				MaxBackups: 5,
				MaxAge:     30, // days
			}),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Get returns the process logger, installing a console one on first use
func Get() *zap.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(Options{})
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Named returns the logger of one pipeline stage, see the Stage constants
func Named(stage string) *zap.Logger {
	return Get().Named(stage)
}

// Replace swaps the process logger, e.g. for an observer in tests.
// The returned function restores the previous logger.
func Replace(l *zap.Logger) func() {
	prev := Get()
	mu.Lock()
	log = l
	mu.Unlock()
	return func() {
		mu.Lock()
		log = prev
		mu.Unlock()
	}
}

// Sync flushes any buffered log entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		log.Sync()
	}
}
