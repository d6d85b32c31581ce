package logger

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// -----------------------------------------------------------------------------

// Logger is a named, printf-style logger shared by every component.
// Internally it writes through one process-wide zap core so all components
// share the same sinks and level.
type Logger struct {
	name   string
	sugar  *zap.SugaredLogger
	config interface{}
}

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	root  atomic.Pointer[zap.SugaredLogger]
)

func init() {
	root.Store(newRoot(zapcore.AddSync(os.Stdout)))
}

func newRoot(sink zapcore.WriteSyncer) *zap.SugaredLogger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level)
	return zap.New(core).Sugar()
}

// -----------------------------------------------------------------------------

// Configure sets the process-wide level and optional file sink.
// Call it once at boot, before constructing component loggers.
func Configure(lvl string, file string) error {
	switch lvl {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "info", "":
		level.SetLevel(zapcore.InfoLevel)
	case "warning", "warn":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}

	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		sink := zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(f))
		root.Store(newRoot(sink))
	}
	return nil
}

// -----------------------------------------------------------------------------

// NewLogger creates a named Logger instance
func NewLogger(config interface{}, name string) *Logger {
	return &Logger{
		name:   name,
		sugar:  root.Load().Named(name),
		config: config,
	}
}

// -----------------------------------------------------------------------------

// Debug logs developer-level detail
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable anomalies
func (l *Logger) Warning(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs a fatal condition and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}
