package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	logger     *zap.SugaredLogger
	loggerOnce sync.Once
	mu         sync.RWMutex
	atomLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// initLogger installs a production JSON logger on stderr unless Init has
// already configured one.
func initLogger() {
	loggerOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if logger != nil {
			return
		}
		logger = build("json")
	})
}

// Init configures the global logger. format is "json" (default) or
// "console"; level is one of debug, info, error.
func Init(level, format string) {
	l := build(format)
	mu.Lock()
	logger = l
	mu.Unlock()
	loggerOnce.Do(func() {})
	SetLevel(ParseLevel(level))
}

func build(format string) *zap.SugaredLogger {
	var cfg zap.Config
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	}
	cfg.Level = atomLevel
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// ParseLevel maps a config string to a Level; unknown values yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		atomLevel.SetLevel(zapcore.DebugLevel)
	case LevelError:
		atomLevel.SetLevel(zapcore.ErrorLevel)
	default:
		atomLevel.SetLevel(zapcore.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

// Sync flushes buffered entries. Call before process exit.
func Sync() {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

func logWithLevel(level Level, msg string, kv ...any) {
	initLogger()

	mu.RLock()
	l := logger
	mu.RUnlock()

	// Odd trailing values are dropped so a malformed call never panics.
	if len(kv)%2 != 0 {
		kv = kv[:len(kv)-1]
	}

	switch level {
	case LevelDebug:
		l.Debugw(msg, kv...)
	case LevelError:
		l.Errorw(msg, kv...)
	default:
		l.Infow(msg, kv...)
	}
}
