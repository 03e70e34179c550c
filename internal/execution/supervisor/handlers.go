package supervisor

import (
	"errors"

	"github.com/lambda-feedback/procpool/internal/execution/control"
	"github.com/lambda-feedback/procpool/internal/execution/models"
	"go.uber.org/zap"
)

var ErrLevelNotAdjustable = errors.New("log level is not adjustable")

func (s *Supervisor) registerHandlers() {
	setCapacity := func(args []any) error {
		return s.SetCapacity(args[0].(int))
	}

	s.registry.Register(control.Handler{
		Name:   "capacity",
		Params: []control.Kind{control.Int},
		Usage:  "set the number of concurrent workers",
		Fn:     setCapacity,
	})

	s.registry.Register(control.Handler{
		Name:   "tune_num_of_workers",
		Params: []control.Kind{control.Int},
		Usage:  "alias of capacity",
		Fn:     setCapacity,
	})

	s.registry.Register(control.Handler{
		Name:   "rlimit_cpu",
		Params: []control.Kind{control.Uint},
		Usage:  "set the cpu seconds of new workers, 0 for unlimited",
		Fn: func(args []any) error {
			limits := s.Limits()
			limits.CPUSeconds = args[0].(uint64)
			s.SetLimits(limits)
			return nil
		},
	})

	s.registry.Register(control.Handler{
		Name:   "rlimit_as",
		Params: []control.Kind{control.Uint},
		Usage:  "set the address space bytes of new workers, 0 for unlimited",
		Fn: func(args []any) error {
			limits := s.Limits()
			limits.AddressSpace = args[0].(uint64)
			s.SetLimits(limits)
			return nil
		},
	})

	s.registry.Register(control.Handler{
		Name:   "log_level",
		Params: []control.Kind{control.String},
		Usage:  "set the log level",
		Fn: func(args []any) error {
			if s.level == nil {
				return ErrLevelNotAdjustable
			}

			if err := s.level.UnmarshalText([]byte(args[0].(string))); err != nil {
				return err
			}

			s.record(models.Event{Kind: models.EventControl, Message: "log level " + s.level.String()})
			return nil
		},
	})

	s.registry.Register(control.Handler{
		Name:  "dump",
		Usage: "log the live workers and the history",
		Fn: func([]any) error {
			s.log.Info("dump",
				zap.Stringer("state", s.State()),
				zap.Int("capacity", s.Capacity()),
				zap.Any("limits", s.Limits()),
				zap.Any("workers", s.Workers()),
				zap.Any("history", s.History()))
			return nil
		},
	})
}

// readControlFile applies the lines of the control side file.
func (s *Supervisor) readControlFile() {
	lines, err := s.signalFile.Read()
	if err != nil {
		s.log.Warn("failed to read control file", zap.Error(err))
		return
	}

	for _, line := range lines {
		// outcome is logged by the registry
		_, _ = s.registry.Exec(line)
	}
}
