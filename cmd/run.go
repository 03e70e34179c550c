package cmd

import (
	"fmt"

	"github.com/lambda-feedback/procpool/app"
	"github.com/lambda-feedback/procpool/internal/execution/supervisor"
	"github.com/lambda-feedback/procpool/util/logging"
	"github.com/urfave/cli/v2"
)

// defaults only feed the help text, the effective values come from config
var defaults = supervisor.DefaultConfig()

var (
	runCmdDescription = `The run command starts the supervisor. Commands are read
from the --source file, or from stdin as one JSON object per
line, until the end of the input or an empty line. Every
command runs in its own worker process; results are written
to stdout as one JSON object per line.

The supervisor drains on SIGINT or SIGTERM: no new commands
are started, running workers are awaited.`
	runCmd = &cli.Command{
		Name:        "run",
		Usage:       "Start the supervisor.",
		Description: runCmdDescription,
		Action:      runAction,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:        "capacity",
				Aliases:     []string{"n"},
				Usage:       "the maximum number of concurrent workers.",
				DefaultText: fmt.Sprint(defaults.Capacity),
				Category:    "pool",
			},
			&cli.PathFlag{
				Name:     "source",
				Aliases:  []string{"s"},
				Usage:    "read commands from a .jsonl or .yaml file instead of stdin.",
				Category: "pool",
			},
			&cli.DurationFlag{
				Name:        "poll-interval",
				Usage:       "the maximum wait for ready worker channels.",
				DefaultText: defaults.PollInterval.String(),
				Category:    "pool",
			},
			&cli.DurationFlag{
				Name:        "drain-timeout",
				Usage:       "the maximum wait for running workers on shutdown.",
				DefaultText: "5m",
				Category:    "pool",
			},
			&cli.Uint64Flag{
				Name:        "rlimit-cpu",
				Usage:       "the cpu seconds per worker, 0 for unlimited.",
				DefaultText: fmt.Sprint(defaults.Limits.CPUSeconds),
				Category:    "limits",
			},
			&cli.Uint64Flag{
				Name:        "rlimit-as",
				Usage:       "the address space bytes per worker, 0 for unlimited.",
				DefaultText: fmt.Sprint(defaults.Limits.AddressSpace),
				Category:    "limits",
			},
			&cli.BoolFlag{
				Name:     "status",
				Usage:    "serve the read-only status endpoint.",
				Category: "status",
			},
			&cli.StringFlag{
				Name:        "status-host",
				Usage:       "the host the status endpoint listens on.",
				DefaultText: "localhost",
				Category:    "status",
			},
			&cli.IntFlag{
				Name:        "status-port",
				Usage:       "the port the status endpoint listens on.",
				DefaultText: "8080",
				Category:    "status",
			},
			&cli.BoolFlag{
				Name:     "h2c",
				Usage:    "enable HTTP/2 cleartext upgrade for the status endpoint.",
				Category: "status",
			},
			&cli.StringFlag{
				Name:     "trace-output",
				Usage:    "write worker spans to stdout or a file.",
				Category: "tracing",
			},
		}, controlFlags...),
	}
)

func runAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, log)
	if err != nil {
		return err
	}

	shell, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	return shell.Run(ctx.Context, app.Modules(cfg)...)
}

func init() {
	rootApp.Commands = append(rootApp.Commands, runCmd)
}
