package app

import (
	"context"
	"fmt"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/lambda-feedback/procpool/config"
	"github.com/lambda-feedback/procpool/dispatch"
	"github.com/lambda-feedback/procpool/internal/execution/supervisor"
	"github.com/lambda-feedback/procpool/internal/execution/worker"
	"github.com/lambda-feedback/procpool/source"
	"github.com/lambda-feedback/procpool/tracing"
	"github.com/lambda-feedback/procpool/util/logging"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SupervisorModule runs the supervisor for the lifetime of the app.
// The app shuts down once the supervisor finished draining.
func SupervisorModule() fx.Option {
	return fx.Module(
		"supervisor",
		// rename logger for module
		logging.DecorateLogger("pool"),
		// provide collaborators
		fx.Provide(
			NewSource,
			NewDispatcher,
			NewSpawner,
			NewTracing,
			NewSupervisor,
		),
		// run the supervisor
		fx.Invoke(RunSupervisor),
	)
}

// NewSource reads commands from the configured file, or from stdin.
func NewSource(cfg config.Config) (source.Source, error) {
	if cfg.Source.File != "" {
		return source.NewFile(cfg.Source.File)
	}

	return source.NewReader(os.Stdin)
}

// NewDispatcher writes results to stdout, one JSON envelope per line.
func NewDispatcher() dispatch.Dispatcher {
	return dispatch.NewJSONLines(os.Stdout)
}

// NewSpawner re-executes the running binary in worker mode. Settings
// the worker needs are passed through its environment.
func NewSpawner(cfg config.Config, log *zap.Logger) (worker.Spawner, error) {
	env := []string{
		fmt.Sprintf("%sMAX_RESULT_SIZE=%d", config.EnvPrefix, cfg.Supervisor.MaxResultSize),
	}

	if cfg.LogLevel != "" {
		env = append(env, "LOG_LEVEL="+cfg.LogLevel)
	}
	if cfg.LogFormat != "" {
		env = append(env, "LOG_FORMAT="+cfg.LogFormat)
	}

	return worker.NewSpawner(cfg.Worker, env, log)
}

func NewTracing(cfg config.Config, version Version, lc fx.Lifecycle) (trace.Tracer, error) {
	provider, err := tracing.New(cfg.Tracing, string(version))
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: provider.Shutdown,
	})

	return provider.Tracer(), nil
}

type SupervisorParams struct {
	fx.In

	Config     config.Config
	Source     source.Source
	Dispatcher dispatch.Dispatcher
	Spawner    worker.Spawner
	Tracer     trace.Tracer
	Level      *zap.AtomicLevel `optional:"true"`
	Log        *zap.Logger
}

func NewSupervisor(params SupervisorParams) (*supervisor.Supervisor, error) {
	return supervisor.New(supervisor.Params{
		Config:     params.Config.Supervisor,
		Source:     params.Source,
		Dispatcher: params.Dispatcher,
		Spawner:    params.Spawner,
		Tracer:     params.Tracer,
		Level:      params.Level,
		Log:        params.Log,
	})
}

// RunSupervisor starts the loop once the app started and drains it
// when the app stops. A finished loop shuts the app down, with exit
// code 1 if the loop failed.
func RunSupervisor(
	ctx context.Context,
	s *supervisor.Supervisor,
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	log *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				code := 0

				if err := s.Run(ctx); err != nil {
					log.Error("supervisor failed", zap.Error(err))
					sentry.CaptureException(err)
					code = 1
				}

				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					log.Warn("failed to shut down", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}
