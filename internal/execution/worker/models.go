package worker

import (
	"errors"
	"time"
)

// ChannelFd is the descriptor under which a worker inherits its end of
// the ipc channel: the first entry of exec.Cmd.ExtraFiles.
const ChannelFd = 3

// EnvWorker marks a process as a worker spawned by the supervisor.
const EnvWorker = "PROCPOOL_WORKER_MODE"

var (
	ErrNoChannel      = errors.New("worker channel not available")
	ErrNoExecutable   = errors.New("worker executable not found")
	ErrInvalidCommand = errors.New("invalid command frame")
)

type SpawnConfig struct {
	// Executable is the path of the binary to execute as worker. It
	// defaults to the running executable, re-executed in worker mode.
	Executable string `conf:"executable"`

	// Dir is the working directory in which
	// the worker should be executed
	Dir string `conf:"cwd"`

	// Args is the list of arguments to pass to the executable.
	// Defaults to the single argument "worker".
	Args []string `conf:"args"`

	// Env is a map of additional environment variables
	// to set when running the worker
	Env map[string]string `conf:"env"`

	// ReadTimeout bounds each read on the supervisor's
	// end of the channel once a frame has started
	ReadTimeout time.Duration `conf:"read_timeout"`
}
