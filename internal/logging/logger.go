// Package logging builds the zap loggers used by the scraper.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger flavour. An empty Level means debug in
// development and info otherwise.
type Options struct {
	Development bool
	Level       string
}

// New returns a console logger with coloured levels for development, or a
// JSON logger named "jobscraper" for scheduled runs. Both log to stderr so
// the chart on stdout stays clean.
func New(opts Options) (*zap.Logger, error) {
	level, err := parseLevel(opts.Level, opts.Development)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stderr"}
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if !opts.Development {
		logger = logger.Named("jobscraper")
	}
	return logger, nil
}

// ValidateLevel reports whether raw names a zap level. Empty is allowed.
func ValidateLevel(raw string) error {
	_, err := parseLevel(raw, false)
	return err
}

func parseLevel(raw string, development bool) (zapcore.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if development {
			return zapcore.DebugLevel, nil
		}
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(raw)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// WithRun scopes a logger to a single scrape run.
func WithRun(logger *zap.Logger, runID string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("run_id", runID))
}
