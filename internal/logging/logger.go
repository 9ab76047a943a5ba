// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity selects how much the service logs.
type Verbosity string

// Supported verbosity levels.
const (
	// VerbosityRegular logs info and above with the production encoder.
	VerbosityRegular Verbosity = "regular"
	// VerbosityEnhanced logs debug and above with the production encoder.
	VerbosityEnhanced Verbosity = "enhanced"
	// VerbosityDebug logs debug and above with the development encoder.
	VerbosityDebug Verbosity = "debug"
)

// ParseVerbosity maps a config string to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch Verbosity(s) {
	case VerbosityRegular, VerbosityEnhanced, VerbosityDebug:
		return Verbosity(s), nil
	case "":
		return VerbosityRegular, nil
	default:
		return "", fmt.Errorf("unknown verbosity %q", s)
	}
}

// New builds a zap.Logger for the given verbosity.
func New(v Verbosity) (*zap.Logger, error) {
	if v == VerbosityDebug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	if v == VerbosityEnhanced {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}
