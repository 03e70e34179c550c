package supervisor

import (
	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/lambda-feedback/procpool/internal/execution/rlimit"
)

// State is the lifecycle state of a supervisor.
type State int32

const (
	StateInit State = iota
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a read-only snapshot of a supervisor.
type Status struct {
	State    State               `json:"state"`
	Capacity int                 `json:"capacity"`
	Active   int                 `json:"active"`
	Limits   rlimit.Limits       `json:"limits"`
	Workers  []models.WorkerInfo `json:"workers"`
	History  []models.Event      `json:"history"`
}

func (s *Supervisor) Status() Status {
	return Status{
		State:    s.State(),
		Capacity: s.Capacity(),
		Active:   s.Active(),
		Limits:   s.Limits(),
		Workers:  s.Workers(),
		History:  s.History(),
	}
}
