package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// DefaultLevel is used by cmd/ringshm-bench when the config file does not
// override it.
const DefaultLevel = zapcore.InfoLevel

// Init builds the console logger used by the ringshm-bench writer and
// reader commands. Colorized level output is only enabled when stderr is
// attached to a terminal, so piped/redirected output stays clean. When
// cfg.Component is set, every line carries a "component" field, which is
// what lets serve and tail output be told apart once interleaved.
func Init(cfg *Config) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()

	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(cfg.Level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sugared := logger.Sugar()
	if cfg.Component != "" {
		sugared = sugared.With("component", cfg.Component)
	}

	return sugared, config.Level, nil
}
