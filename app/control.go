package app

import (
	"context"

	"github.com/lambda-feedback/procpool/config"
	"github.com/lambda-feedback/procpool/internal/execution/control"
	"github.com/lambda-feedback/procpool/internal/execution/supervisor"
	"github.com/lambda-feedback/procpool/util/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ControlModule serves the admin endpoint on the configured socket.
func ControlModule() fx.Option {
	return fx.Module(
		"control",
		// rename logger for module
		logging.DecorateLogger("control"),
		fx.Provide(NewControlServer),
		fx.Invoke(func(*control.Server) {}),
	)
}

func NewControlServer(
	cfg config.Config,
	s *supervisor.Supervisor,
	lc fx.Lifecycle,
	log *zap.Logger,
) (*control.Server, error) {
	srv, err := control.NewServer(cfg.Supervisor.Control.Socket, s.Inbox(), s, log.With(
		zap.String("socket", cfg.Supervisor.Control.Socket),
	))
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start()
		},
		OnStop: func(context.Context) error {
			return srv.Stop()
		},
	})

	return srv, nil
}
