package cmd

import (
	"errors"
	"os"

	"github.com/lambda-feedback/procpool/internal/execution/worker"
	"github.com/lambda-feedback/procpool/operation"
	"github.com/lambda-feedback/procpool/util"
	"github.com/lambda-feedback/procpool/util/logging"
	"github.com/urfave/cli/v2"
)

var errNotSpawned = errors.New("the worker command is run by the supervisor only")

var workerCmd = &cli.Command{
	Name:   "worker",
	Usage:  "Run a single command received from the supervisor.",
	Hidden: true,
	Action: workerAction,
}

func workerAction(ctx *cli.Context) error {
	if !util.Truthy(os.Getenv(worker.EnvWorker)) {
		return errNotSpawned
	}

	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, log)
	if err != nil {
		return err
	}

	// exits the process
	worker.Main(ctx.Context, worker.Params{
		Channel:       os.NewFile(worker.ChannelFd, "channel"),
		Registry:      operation.Default(),
		MaxResultSize: cfg.Supervisor.MaxResultSize,
		Log:           log,
	})

	return nil
}

func init() {
	rootApp.Commands = append(rootApp.Commands, workerCmd)
}
