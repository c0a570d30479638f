package debug

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

var (
	// IsEnabled controls whether debug messages are output
	IsEnabled bool
	// CurrentLevel is the minimum level of messages to output
	CurrentLevel LogLevel
	logger       *zap.SugaredLogger
	levelNames   = map[LogLevel]string{
		LevelDebug:   "DEBUG",
		LevelInfo:    "INFO",
		LevelWarning: "WARNING",
		LevelError:   "ERROR",
	}
	levelMap = map[string]LogLevel{
		"DEBUG":   LevelDebug,
		"INFO":    LevelInfo,
		"WARNING": LevelWarning,
		"WARN":    LevelWarning,
		"ERROR":   LevelError,
	}
	zapLevels = map[LogLevel]zapcore.Level{
		LevelDebug:   zapcore.DebugLevel,
		LevelInfo:    zapcore.InfoLevel,
		LevelWarning: zapcore.WarnLevel,
		LevelError:   zapcore.ErrorLevel,
	}
)

func init() {
	logger = zap.NewNop().Sugar()
	Reinitialize()
}

// newLogger builds the console logger used by the package level helpers.
// Caller skip covers Log and the level helper that called it.
func newLogger(level LogLevel) (*zap.SugaredLogger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	config := zap.Config{
		Level:             zap.NewAtomicLevelAt(zapLevels[level]),
		Development:       false,
		Encoding:          "console",
		EncoderConfig:     encoderConfig,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	l, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, fmt.Errorf("unable to create logger: %w", err)
	}
	return l.Sugar(), nil
}

// SetLogger replaces the underlying zap logger (useful for testing)
func SetLogger(l *zap.Logger) {
	logger = l.WithOptions(zap.AddCallerSkip(2)).Sugar()
}

// Log prints a debug message with the specified level if debugging is enabled
func Log(level LogLevel, format string, v ...interface{}) {
	if !IsEnabled || level < CurrentLevel {
		return
	}

	switch level {
	case LevelDebug:
		logger.Debugf(format, v...)
	case LevelInfo:
		logger.Infof(format, v...)
	case LevelWarning:
		logger.Warnf(format, v...)
	default:
		logger.Errorf(format, v...)
	}
}

// Debug logs a debug level message
func Debug(format string, v ...interface{}) {
	Log(LevelDebug, format, v...)
}

// Info logs an info level message
func Info(format string, v ...interface{}) {
	Log(LevelInfo, format, v...)
}

// Warning logs a warning level message
func Warning(format string, v ...interface{}) {
	Log(LevelWarning, format, v...)
}

// Error logs an error level message
func Error(format string, v ...interface{}) {
	Log(LevelError, format, v...)
}

// Sync flushes any buffered log entries. Errors from syncing a terminal or
// pipe, which cannot be synced, are not reported.
func Sync() error {
	err := logger.Sync()
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// Reinitialize updates the debug settings based on current environment variables
func Reinitialize() {
	debugEnv := os.Getenv("DEBUG")
	IsEnabled = debugEnv == "true" || debugEnv == "1"

	levelEnv := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	if level, exists := levelMap[levelEnv]; exists {
		CurrentLevel = level
	} else {
		CurrentLevel = LevelInfo // Default to INFO if not specified
	}

	if !IsEnabled {
		return
	}

	l, err := newLogger(CurrentLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "debug: %v\n", err)
		return
	}
	logger = l
	Info("Debug logging initialized - Enabled: %v, Level: %s", IsEnabled, levelNames[CurrentLevel])
}
