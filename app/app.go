package app

import (
	"time"

	"github.com/lambda-feedback/procpool/config"
	"github.com/lambda-feedback/procpool/internal/shell"
	"github.com/lambda-feedback/procpool/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

// Version is the version of the running binary.
type Version string

// stopGrace is added to the drain timeout for the remaining stop hooks.
const stopGrace = 10 * time.Second

func New(ctx *cli.Context, cfg config.Config) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	options := []fx.Option{
		// provide global config
		fx.Supply(cfg),
		// provide version
		fx.Supply(Version(ctx.App.Version)),
	}

	if level := logging.LevelFromContext(ctx.Context); level != nil {
		options = append(options, fx.Supply(level))
	}

	sharedModule := fx.Module("shared", options...)

	// draining may take as long as the longest running worker.
	// fx only accepts the stop timeout on the top-level app.
	stopTimeout := fx.StopTimeout(cfg.DrainTimeout + stopGrace)

	return shell.New(log, stopTimeout, sharedModule), nil
}
