package shared

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	ServiceName string // "proofviewer" or "proofgen"
	Development bool   // true for console output with debug level
	Level       string // one of the LogLevel constants, empty means the mode default
}

// Logger wraps zap.Logger with verification-specific helpers
type Logger struct {
	*zap.Logger
	serviceName string
}

// NewLogger creates a new logger instance based on the configuration
func NewLogger(config LoggerConfig) (*Logger, error) {
	var zapConfig zap.Config
	if config.Development {
		// Development mode: console logging with debug level
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		// Production mode: structured JSON logging
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if config.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(config.Level)); err != nil {
			return nil, err
		}
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	zapLogger = zapLogger.With(zap.String("service", config.ServiceName))

	return &Logger{
		Logger:      zapLogger,
		serviceName: config.ServiceName,
	}, nil
}

// NewLoggerFromEnv creates a logger using environment variables
func NewLoggerFromEnv(serviceName string) (*Logger, error) {
	config := LoggerConfig{
		ServiceName: serviceName,
		Development: GetEnvOrDefault("DEVELOPMENT", "false") == "true",
		Level:       GetEnvOrDefault("LOG_LEVEL", ""),
	}
	return NewLogger(config)
}

// NewNopLogger returns a logger that discards everything. Used by tests and
// library callers that do not care about logs.
func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop(), serviceName: "nop"}
}

// WrapLogger adopts an existing zap logger, e.g. one built by zaptest.
func WrapLogger(l *zap.Logger, serviceName string) *Logger {
	if l == nil {
		return NewNopLogger()
	}
	return &Logger{Logger: l, serviceName: serviceName}
}

// Attempt-aware logging
func (l *Logger) WithAttempt(attemptID string) *zap.Logger {
	if attemptID == "" {
		return l.Logger
	}
	return l.Logger.With(zap.String("attempt_id", attemptID))
}

// Artifact-aware logging
func (l *Logger) WithArtifact(name string) *zap.Logger {
	if name == "" {
		return l.Logger
	}
	return l.Logger.With(zap.String("artifact", name))
}

// Critical logs internal-consistency faults. These indicate a bug, not a bad proof.
func (l *Logger) Critical(msg string, fields ...zap.Field) {
	l.Logger.Error(msg, append(fields, zap.Bool("critical", true))...)
}

// Security logs rejected proofs (bad signature, untrusted chain, mismatched substrings).
func (l *Logger) Security(msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, append(fields, zap.Bool("security_event", true))...)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// LogLevel constants for consistency
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)
