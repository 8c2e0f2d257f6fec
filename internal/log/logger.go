// Package log provides structured logging for tinyhook using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with tinyhook-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	// Shorter timestamps in development
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fallback to no-op if config fails
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// ScriptLoad logs when a hook script has been executed.
func (l *Logger) ScriptLoad(path string, pre, post int) {
	l.Info("script loaded",
		zap.String("path", path),
		zap.Int("pre", pre),
		zap.Int("post", post),
	)
}

// HookRegister logs a hook registration or replacement.
func (l *Logger) HookRegister(direction string, num int64, replaced bool) {
	l.Debug("hook registered",
		zap.String("dir", direction),
		zap.Int64("sysno", num),
		zap.Bool("replaced", replaced),
	)
}

// HookError logs a callback that threw during invocation. The dispatch
// treats the hook as if it never fired, so this is the only trace of it.
func (l *Logger) HookError(direction string, num int64, err error) {
	l.Warn("hook failed",
		zap.String("dir", direction),
		zap.Int64("sysno", num),
		zap.Error(err),
	)
}

// HookSkip logs a pre-hook that suppressed the real syscall.
func (l *Logger) HookSkip(num int64, ret int64) {
	l.Debug("syscall skipped",
		zap.Int64("sysno", num),
		zap.Int64("ret", ret),
	)
}

// Syscall logs a dispatched syscall at debug level.
func (l *Logger) Syscall(num int64, name string, ret int64) {
	l.Debug("syscall",
		zap.Int64("sysno", num),
		zap.String("name", name),
		zap.Int64("ret", ret),
	)
}

// Hex formats a uint64 as hex string for logging.
func Hex(addr uint64) string {
	return "0x" + hexString(addr)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Field helpers for common patterns.

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Sysno creates a syscall number field.
func Sysno(num int64) zap.Field {
	return zap.Int64("sysno", num)
}
