package main

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/tnishiok/avbstreamhandler/internal/logging"
)

// Config is shared by the serve and tail subcommands so both sides of a
// benchmark run agree on the region's path and geometry without requiring
// the packet size and slot count to be repeated on both command lines.
type Config struct {
	Logging logging.Config `yaml:"logging"`
	// ShmPath is the backing file for the mapped region, typically under
	// /dev/shm on Linux.
	ShmPath string `yaml:"shm_path"`
	// PacketSize is the fixed size of every slot in the ring.
	PacketSize datasize.ByteSize `yaml:"packet_size"`
	// NumBuffers is the number of slots in the ring.
	NumBuffers uint32 `yaml:"num_buffers"`
	// WriteRate paces serve's synthetic packet production.
	WriteRate time.Duration `yaml:"write_rate"`
}

// DefaultConfig returns the configuration used when no --config flag is
// given.
func DefaultConfig() *Config {
	return &Config{
		Logging:    logging.Config{Level: logging.DefaultLevel},
		ShmPath:    "/dev/shm/ringshm-bench",
		PacketSize: 256 * datasize.KB,
		NumBuffers: 64,
		WriteRate:  10 * time.Millisecond,
	}
}

// LoadConfig loads configuration from path, falling back to defaults for
// any field path's file doesn't set.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}
	return cfg, nil
}
