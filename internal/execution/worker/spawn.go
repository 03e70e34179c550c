package worker

import (
	"fmt"
	"os"

	"github.com/lambda-feedback/procpool/internal/execution/ipc"
	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/lambda-feedback/procpool/internal/execution/rlimit"
	"go.uber.org/zap"
)

// Spawner creates worker processes, each bound to one command.
type Spawner interface {
	Spawn(cmd models.Command, limits rlimit.Limits) (*Process, error)
}

// ProcessSpawner spawns workers by executing a worker binary, by default
// the running executable in worker mode.
type ProcessSpawner struct {
	config SpawnConfig
	env    []string
	log    *zap.Logger
}

var _ Spawner = (*ProcessSpawner)(nil)

// NewSpawner creates a spawner. extraEnv is passed to every worker, on
// top of the supervisor's environment and config.Env.
func NewSpawner(config SpawnConfig, extraEnv []string, log *zap.Logger) (*ProcessSpawner, error) {
	if config.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoExecutable, err)
		}

		config.Executable = exe
	}

	if config.Args == nil {
		config.Args = []string{"worker"}
	}

	return &ProcessSpawner{
		config: config,
		env:    extraEnv,
		log:    log.Named("spawner"),
	}, nil
}

// Spawn creates the worker's channel, starts the process and sends it
// the command. Channel and process creation failures are returned; a
// failure to deliver the command is only logged, the worker will exit
// without an envelope and is reaped like any other.
func (s *ProcessSpawner) Spawn(cmd models.Command, limits rlimit.Limits) (*Process, error) {
	log := s.log.With(zap.Stringer("command", cmd))

	// both ends exist before the process does
	ch, peer, err := ipc.NewPair()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	env := make([]string, 0, len(s.env)+3)
	env = append(env, EnvWorker+"=1")
	env = append(env, s.env...)
	env = append(env, limits.Env()...)

	process, err := startProc(s.config, peer, env, s.log)

	// the child holds its own copy of the peer now
	if closeErr := peer.Close(); closeErr != nil {
		log.Warn("failed to close worker end of channel", zap.Error(closeErr))
	}

	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	process.Channel = ch

	if s.config.ReadTimeout > 0 {
		if err := ch.SetReadTimeout(s.config.ReadTimeout); err != nil {
			log.Warn("failed to set channel read timeout", zap.Error(err))
		}
	}

	if err := ipc.Encode(ch, cmd, ipc.DefaultMaxCommandSize); err != nil {
		log.Error("failed to send command to worker", zap.Error(err))
	}

	if err := ch.CloseWrite(); err != nil {
		log.Debug("failed to half-close channel", zap.Error(err))
	}

	log.Debug("spawned worker", zap.Int("pid", process.Pid))

	return process, nil
}
