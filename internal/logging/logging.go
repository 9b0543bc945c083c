// Package logging builds the zap loggers shared by the tools.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger; debug lowers the level to Debug.
func New(debug bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		cfg.Level.SetLevel(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewExample().Sugar()
	}
	return logger.Sugar()
}

// Named returns a child logger for one component.
func Named(parent *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if parent == nil {
		return zap.NewNop().Sugar().Named(name)
	}
	return parent.Named(name)
}
