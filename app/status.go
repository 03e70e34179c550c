package app

import (
	"github.com/lambda-feedback/procpool/internal/execution/supervisor"
	"github.com/lambda-feedback/procpool/internal/server"
	"github.com/lambda-feedback/procpool/util/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// StatusModule serves the supervisor status at GET /status.
func StatusModule(config server.HttpConfig) fx.Option {
	return fx.Module(
		"status",
		// rename logger for module
		logging.DecorateLogger("status"),
		// provide handlers
		fx.Provide(NewStatusHandler),
		// provide server
		server.Module(config),
	)
}

func NewStatusHandler(s *supervisor.Supervisor, log *zap.Logger) server.RouteResult {
	return server.AsRoute("/status", server.JSONHandler(s.Status, log))
}
