package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SafeLogger wraps a zap logger and tolerates a nil receiver, so packages can
// log before InitLogger runs (tests, init order) without panicking.
type SafeLogger struct {
	logger *zap.Logger
}

var (
	// Logger is the global logger instance
	Logger = &SafeLogger{logger: zap.NewNop()}
)

// NewSafeLogger wraps an existing zap logger
func NewSafeLogger(l *zap.Logger) *SafeLogger {
	return &SafeLogger{logger: l}
}

// InitLogger initializes the global logger
func InitLogger() error {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Set log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logLevel)); err == nil {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}

	l, err := config.Build(
		zap.AddCallerSkip(1),
		zap.Fields(
			zap.String("service", "pass-backend"),
			zap.String("version", "v1"),
		),
	)
	if err != nil {
		return err
	}

	Logger = &SafeLogger{logger: l}
	zap.ReplaceGlobals(l)
	return nil
}

func (s *SafeLogger) base() *zap.Logger {
	if s == nil || s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

// Debug logs at debug level
func (s *SafeLogger) Debug(msg string, fields ...zap.Field) { s.base().Debug(msg, fields...) }

// Info logs at info level
func (s *SafeLogger) Info(msg string, fields ...zap.Field) { s.base().Info(msg, fields...) }

// Warn logs at warn level
func (s *SafeLogger) Warn(msg string, fields ...zap.Field) { s.base().Warn(msg, fields...) }

// Error logs at error level
func (s *SafeLogger) Error(msg string, fields ...zap.Field) { s.base().Error(msg, fields...) }

// Fatal logs at fatal level and exits
func (s *SafeLogger) Fatal(msg string, fields ...zap.Field) { s.base().Fatal(msg, fields...) }

// With returns a child logger carrying the given fields
func (s *SafeLogger) With(fields ...zap.Field) *SafeLogger {
	return &SafeLogger{logger: s.base().With(fields...)}
}

// Named returns a child logger with the given name segment
func (s *SafeLogger) Named(name string) *SafeLogger {
	return &SafeLogger{logger: s.base().Named(name)}
}

// Unwrap returns the underlying zap logger, never nil
func (s *SafeLogger) Unwrap() *zap.Logger {
	return s.base()
}

// Sync flushes buffered log entries
func (s *SafeLogger) Sync() error {
	if s == nil || s.logger == nil {
		return nil
	}
	return s.logger.Sync()
}
