package worker

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/lambda-feedback/procpool/internal/execution/ipc"
	"go.uber.org/zap"
)

// Process is the supervisor's handle on a spawned worker. It is not
// waited on by the os/exec machinery, the reaper collects its exit
// status instead.
type Process struct {
	// Pid is the os process id of the worker
	Pid int

	// Channel is the supervisor's end of the worker's ipc channel
	Channel *ipc.Channel

	// Started is the time the process was created
	Started time.Time

	process *os.Process
	log     *zap.Logger
}

func startProc(config SpawnConfig, peer *os.File, env []string, log *zap.Logger) (*Process, error) {
	cmd := exec.Command(config.Executable, config.Args...)

	cmd.Env = append(os.Environ(), env...)
	for k, v := range config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if config.Dir != "" {
		cmd.Dir = config.Dir
	}

	// stdout is reserved, workers talk over the channel only. stderr is
	// shared so worker logs end up next to the supervisor's.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = os.Stderr

	// the peer becomes fd 3 in the child
	cmd.ExtraFiles = []*os.File{peer}

	// own process group, so terminal signals aimed at the
	// supervisor do not interrupt in-flight workers
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &Process{
		Pid:     cmd.Process.Pid,
		Started: time.Now(),
		process: cmd.Process,
		log:     log.Named("proc").With(zap.Int("pid", cmd.Process.Pid)),
	}, nil
}

// Terminate sends SIGTERM to the worker's process group.
func (p *Process) Terminate() error {
	return p.signal(syscall.SIGTERM)
}

// Kill sends SIGKILL to the worker's process group.
func (p *Process) Kill() error {
	return p.signal(syscall.SIGKILL)
}

// Release frees the os resources associated with the process handle.
// It must only be called once the process has been reaped.
func (p *Process) Release() error {
	return p.process.Release()
}

func (p *Process) signal(signal syscall.Signal) error {
	p.log.With(zap.Stringer("signal", signal)).Info("sending signal")

	if pgid, err := syscall.Getpgid(p.Pid); err == nil {
		// Negative pid sends signal to all in process group
		return syscall.Kill(-pgid, signal)
	}

	return syscall.Kill(p.Pid, signal)
}
