// Package logging builds the process zap logger from configuration.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for the given level (debug|info|warn|error) and
// format (console|json). Logs go to stderr so command output stays clean.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var config zap.Config
	switch strings.ToLower(format) {
	case "", "console":
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		config = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q: must be console or json", format)
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Install builds a logger and makes it the zap global. The returned func
// flushes and restores the previous global.
func Install(level, format string) (*zap.Logger, func(), error) {
	logger, err := New(level, format)
	if err != nil {
		return nil, nil, err
	}
	restore := zap.ReplaceGlobals(logger)
	return logger, func() {
		_ = logger.Sync()
		restore()
	}, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
