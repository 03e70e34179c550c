// Package reaper collects the exit status of terminated worker
// processes so the os can release them.
package reaper

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/lambda-feedback/procpool/internal/execution/models"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Exit describes one reaped process.
type Exit struct {
	Pid    int
	Status models.ExitStatus
}

// Reaper tracks child pids and reaps them without blocking. Child exit
// notifications are delivered on a channel the owner selects on; all
// reaping happens in the owner's goroutine, never asynchronously.
type Reaper struct {
	mu      sync.Mutex
	pending map[int]struct{}

	notify chan os.Signal

	log *zap.Logger
}

func New(log *zap.Logger) *Reaper {
	return &Reaper{
		pending: make(map[int]struct{}),
		log:     log.Named("reaper"),
	}
}

// Start subscribes to child exit notifications. The returned channel
// receives a value whenever one or more children may have terminated;
// notifications coalesce, so a single value can stand for several exits.
func (r *Reaper) Start() <-chan os.Signal {
	r.notify = make(chan os.Signal, 1)
	signal.Notify(r.notify, syscall.SIGCHLD)
	return r.notify
}

// Stop unsubscribes from child exit notifications.
func (r *Reaper) Stop() {
	if r.notify != nil {
		signal.Stop(r.notify)
	}
}

// Track registers pid as a child to be reaped.
func (r *Reaper) Track(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending[pid] = struct{}{}
}

// Pending returns the number of tracked, not yet reaped children.
func (r *Reaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}

// Reap collects every tracked child that has terminated, without
// blocking, and returns their exit status. It keeps going until no
// terminated child is left, so coalesced notifications are fully drained.
func (r *Reaper) Reap() []Exit {
	r.mu.Lock()
	pids := make([]int, 0, len(r.pending))
	for pid := range r.pending {
		pids = append(pids, pid)
	}
	r.mu.Unlock()

	var exits []Exit
	for _, pid := range pids {
		exit, done := r.reapOne(pid)
		if !done {
			continue
		}

		r.mu.Lock()
		delete(r.pending, pid)
		r.mu.Unlock()

		if exit != nil {
			exits = append(exits, *exit)
		}
	}

	return exits
}

// reapOne performs a single non-blocking wait on pid. done reports
// whether pid is no longer a live child; exit is nil if it vanished
// without a status being collected here.
func (r *Reaper) reapOne(pid int) (exit *Exit, done bool) {
	for {
		var status unix.WaitStatus

		wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			// interrupted: retry
			continue
		case errors.Is(err, unix.ECHILD):
			r.log.Warn("child vanished before it was reaped", zap.Int("pid", pid))
			return nil, true
		case err != nil:
			r.log.Error("wait4 failed", zap.Int("pid", pid), zap.Error(err))
			return nil, false
		case wpid == 0:
			// still running
			return nil, false
		}

		// stopped or continued children are still alive
		if !status.Exited() && !status.Signaled() {
			return nil, false
		}

		return &Exit{Pid: wpid, Status: DecodeStatus(status)}, true
	}
}

// DecodeStatus splits a wait status into exit code or terminating signal.
func DecodeStatus(status unix.WaitStatus) models.ExitStatus {
	var code, signo int

	switch {
	case status.Exited():
		code = status.ExitStatus()
		return models.ExitStatus{Code: &code}
	case status.Signaled():
		signo = int(status.Signal())
		return models.ExitStatus{Signal: &signo}
	}

	// could not determine the exit status or signal,
	// set exit status to 1
	code = 1
	return models.ExitStatus{Code: &code}
}
