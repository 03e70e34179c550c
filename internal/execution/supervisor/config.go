package supervisor

import (
	"time"

	"github.com/lambda-feedback/procpool/internal/execution/ipc"
	"github.com/lambda-feedback/procpool/internal/execution/rlimit"
)

// ControlConfig describes the administrative transports.
type ControlConfig struct {
	// File is the side file read when the supervisor receives the
	// control signal. Empty disables the signal transport.
	File string `conf:"file"`

	// Socket is the unix socket of the json-rpc admin endpoint.
	// Empty disables the rpc transport.
	Socket string `conf:"socket"`
}

type Config struct {
	// Capacity is the maximum number of concurrently running workers.
	Capacity int `conf:"capacity"`

	// PollInterval bounds the wait for ready worker channels.
	PollInterval time.Duration `conf:"poll_interval"`

	// MaxResultSize caps the serialized result envelope.
	MaxResultSize int `conf:"max_result_size"`

	// HistorySize is the number of lifecycle events kept for diagnostics.
	HistorySize int `conf:"history_size"`

	// PidFile is where the supervisor advertises its process id.
	// Empty disables the advertisement.
	PidFile string `conf:"pid_file"`

	// Limits are applied to every worker spawned.
	Limits rlimit.Limits `conf:"rlimit"`

	// Control configures the administrative transports.
	Control ControlConfig `conf:"control"`
}

func DefaultConfig() Config {
	return Config{
		Capacity:      4,
		PollInterval:  20 * time.Millisecond,
		MaxResultSize: ipc.DefaultMaxResultSize,
		HistorySize:   128,
		PidFile:       ".procpool.pid",
		Limits:        rlimit.DefaultLimits(),
		Control: ControlConfig{
			File:   ".procpool.cmd",
			Socket: ".procpool.sock",
		},
	}
}

// withDefaults fills zero values that would make the loop misbehave.
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.Capacity < 1 {
		c.Capacity = d.Capacity
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxResultSize <= 0 {
		c.MaxResultSize = d.MaxResultSize
	}
	if c.HistorySize < 1 {
		c.HistorySize = d.HistorySize
	}

	return c
}
