package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func (c LogConfig) level() (zapcore.Level, error) {
	var lvl zapcore.Level
	if c.Level == "" {
		return zapcore.InfoLevel, nil
	}
	err := lvl.UnmarshalText([]byte(c.Level))
	return lvl, err
}

// Build creates the root logger described by c.
func (c LogConfig) Build(opts ...zap.Option) (*zap.Logger, error) {
	lvl, err := c.level()
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if c.Encoding != "" {
		zc.Encoding = c.Encoding
	}
	if zc.Encoding == "console" {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build(opts...)
}
