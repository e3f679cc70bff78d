package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bayneri/slareport/internal/config"
)

// New builds the service logger. Console encoding switches to the
// development config for human-readable output.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}

	var zapConfig zap.Config
	switch cfg.Encoding {
	case "", "json":
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid LOG_ENCODING %q: must be json or console", cfg.Encoding)
	}
	zapConfig.Level = level
	zapConfig.InitialFields = map[string]interface{}{
		"service": "slareport",
	}
	return zapConfig.Build()
}

// NewCLI returns a console logger for one-shot commands. Without verbose it
// only reports errors.
func NewCLI(verbose bool) *zap.Logger {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.DisableStacktrace = true
	zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	if verbose {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zapConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
