// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the process-wide logger used by the CLI entry point. It starts as a
// no-op so packages that log during init never see nil.
var L = zap.NewNop()

// InitLogger replaces L with a production logger. Failures leave the no-op
// logger in place.
func InitLogger() {
	logger, err := New(false)
	if err != nil {
		return
	}
	L = logger
}

// SetVerbose swaps L for a development logger at debug level.
func SetVerbose() error {
	logger, err := NewAtLevel(true, zapcore.DebugLevel)
	if err != nil {
		return err
	}
	L = logger
	return nil
}

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		return NewAtLevel(true, zapcore.DebugLevel)
	}
	return NewAtLevel(false, zapcore.InfoLevel)
}

// NewAtLevel is New with an explicit minimum level.
func NewAtLevel(development bool, level zapcore.Level) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}
