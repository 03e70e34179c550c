package config

import (
	"time"

	"github.com/lambda-feedback/procpool/internal/execution/supervisor"
	"github.com/lambda-feedback/procpool/internal/execution/worker"
	"github.com/lambda-feedback/procpool/internal/server"
	"github.com/lambda-feedback/procpool/tracing"
	"github.com/lambda-feedback/procpool/util/conf"
)

// EnvPrefix is the prefix of all env vars read into the config.
const EnvPrefix = "PROCPOOL_"

type SourceConfig struct {
	// File is the file to read commands from. If empty,
	// commands are read from stdin, one JSON object per line.
	File string `conf:"file"`
}

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Supervisor is the configuration of the master loop
	Supervisor supervisor.Config `conf:",squash"`

	// Worker configures how workers are spawned
	Worker worker.SpawnConfig `conf:"worker"`

	// Status is the read-only status endpoint
	Status server.HttpConfig `conf:"status"`

	// Source selects where commands come from
	Source SourceConfig `conf:"source"`

	// Tracing configures the span exporter
	Tracing tracing.Config `conf:"tracing"`

	// DrainTimeout bounds the wait for running workers on shutdown
	DrainTimeout time.Duration `conf:"drain_timeout"`
}

// Defaults returns the default config values, keyed by config path.
func Defaults() conf.DefaultConfig {
	s := supervisor.DefaultConfig()

	return conf.Namespace("",
		conf.DefaultConfig{
			"capacity":        s.Capacity,
			"poll_interval":   s.PollInterval.String(),
			"max_result_size": s.MaxResultSize,
			"history_size":    s.HistorySize,
			"pid_file":        s.PidFile,
			"drain_timeout":   "5m",
		},
		conf.Namespace("rlimit", conf.DefaultConfig{
			"cpu": s.Limits.CPUSeconds,
			"as":  s.Limits.AddressSpace,
		}),
		conf.Namespace("control", conf.DefaultConfig{
			"file":   s.Control.File,
			"socket": s.Control.Socket,
		}),
		conf.Namespace("worker", conf.DefaultConfig{
			"read_timeout": "10s",
		}),
		conf.Namespace("status", conf.DefaultConfig{
			"enabled": false,
			"host":    "localhost",
			"port":    8080,
			"h2c":     false,
		}),
	)
}
