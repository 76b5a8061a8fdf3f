package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the JSON zap logger the service emits to stdout. Field
// names follow Cloud Logging conventions so severity filtering works without
// a parsing layer.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	parsed, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// WithRequestFields attaches per-request fields, dropping empty values to keep
// log lines compact.
func WithRequestFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if field.Type == zapcore.StringType && field.String == "" {
			continue
		}
		kept = append(kept, field)
	}
	if len(kept) == 0 {
		return logger
	}
	return logger.With(kept...)
}

// PrintfAdapter adapts a zap logger to the printf-style interfaces some
// Google client libraries expect.
type PrintfAdapter struct {
	Logger *zap.Logger
}

// Printf logs the formatted message at info level.
func (a PrintfAdapter) Printf(format string, args ...any) {
	if a.Logger == nil {
		return
	}
	a.Logger.Info(fmt.Sprintf(format, args...))
}
