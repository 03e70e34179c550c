package app

import (
	"github.com/lambda-feedback/procpool/config"
	"go.uber.org/fx"
)

// Modules returns the modules enabled by cfg.
func Modules(cfg config.Config) []fx.Option {
	modules := []fx.Option{SupervisorModule()}

	if cfg.Supervisor.Control.Socket != "" {
		modules = append(modules, ControlModule())
	}

	if cfg.Status.Enabled {
		modules = append(modules, StatusModule(cfg.Status))
	}

	return modules
}
