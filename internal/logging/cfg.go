package logging

import "go.uber.org/zap/zapcore"

// Config is the configuration for the logging subsystem. Component is set
// by the caller, not the config file: serve and tail run as separate OS
// processes against the same shared region, and their log lines are
// otherwise indistinguishable once interleaved in a shared terminal or
// aggregator.
type Config struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level"`

	// Component tags every line this logger emits, e.g. "serve" or "tail".
	// Left empty, no component field is attached.
	Component string `yaml:"-"`
}
