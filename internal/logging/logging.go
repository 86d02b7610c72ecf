package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents logging severity.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// ServiceName is attached to every log entry.
const ServiceName = "alarm-manager"

var (
	currentLevel     atomic.Int32
	currentVerbosity atomic.Int32

	atom = zap.NewAtomicLevelAt(zapcore.WarnLevel)

	mu     sync.RWMutex
	logger = mustBuild("console")
)

func init() {
	currentLevel.Store(int32(LevelWarn))
}

// Init rebuilds the logger with the given encoding ("console" or "json").
func Init(format string) error {
	l, err := build(format)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

func build(format string) (*zap.Logger, error) {
	var config zap.Config
	switch format {
	case "json":
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
	case "console", "":
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	config.Level = atom
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// stdout belongs to command output.
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	l, err := config.Build()
	if err != nil {
		return nil, err
	}
	l = l.With(zap.String("service", ServiceName))
	if format == "json" {
		if hostname, err := os.Hostname(); err == nil && hostname != "" {
			l = l.With(zap.String("hostname", hostname))
		}
	}
	return l, nil
}

func mustBuild(format string) *zap.Logger {
	l, err := build(format)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// L returns the structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the structured logger (tests pass zap.NewNop()).
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

// SetVerbosity configures logger output from count of -v flags (0-4).
func SetVerbosity(count int) {
	if count < 0 {
		count = 0
	}
	if count > 4 {
		count = 4
	}
	currentVerbosity.Store(int32(count))

	var l Level
	switch count {
	case 0:
		l = LevelWarn
	case 1:
		l = LevelInfo
	case 2:
		l = LevelDebug
	default:
		l = LevelTrace
	}
	currentLevel.Store(int32(l))
	atom.SetLevel(zapLevel(l))
}

// Verbosity returns the stored -v count.
func Verbosity() int {
	return int(currentVerbosity.Load())
}

// LevelName returns current level label.
func LevelName() string {
	return LevelToString(Level(currentLevel.Load()))
}

// LevelToString converts a Level to human readable text.
func LevelToString(l Level) string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// ParseLevel returns Level + verbosity count from string.
func ParseLevel(s string) (Level, int, error) {
	switch strings.ToLower(s) {
	case "error":
		return LevelError, 0, nil
	case "warn", "warning":
		return LevelWarn, 0, nil
	case "info":
		return LevelInfo, 1, nil
	case "debug":
		return LevelDebug, 2, nil
	case "trace":
		return LevelTrace, 4, nil
	default:
		return LevelWarn, Verbosity(), fmt.Errorf("unknown level %s", s)
	}
}

// zap has no trace level; trace entries go out at debug.
func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func shouldLog(l Level) bool {
	return int32(l) <= currentLevel.Load()
}

// Errorf always prints.
func Errorf(format string, args ...any) {
	L().Sugar().Errorf(format, args...)
}

func Warnf(format string, args ...any) {
	L().Sugar().Warnf(format, args...)
}

func Infof(format string, args ...any) {
	L().Sugar().Infof(format, args...)
}

func Debugf(format string, args ...any) {
	L().Sugar().Debugf(format, args...)
}

func Tracef(format string, args ...any) {
	if !shouldLog(LevelTrace) {
		return
	}
	L().Sugar().With("trace", true).Debugf(format, args...)
}
