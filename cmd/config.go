package cmd

import (
	"github.com/lambda-feedback/procpool/config"
	"github.com/lambda-feedback/procpool/util/conf"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// cliMap maps flag names to config keys, where they differ.
var cliMap = map[string]string{
	"source":         "source.file",
	"rlimit-cpu":     "rlimit.cpu",
	"rlimit-as":      "rlimit.as",
	"control-file":   "control.file",
	"control-socket": "control.socket",
	"status":         "status.enabled",
	"status-host":    "status.host",
	"status-port":    "status.port",
	"h2c":            "status.h2c",
	"trace-output":   "tracing.output",
}

// controlFlags locate a running supervisor. They are shared by the
// run and ctl commands.
var controlFlags = []cli.Flag{
	&cli.PathFlag{
		Name:     "pid-file",
		Usage:    "the file the supervisor advertises its pid in.",
		Category: "control",
	},
	&cli.PathFlag{
		Name:     "control-file",
		Usage:    "the side file read on the control signal.",
		Category: "control",
	},
	&cli.PathFlag{
		Name:     "control-socket",
		Usage:    "the unix socket of the admin endpoint.",
		Category: "control",
	},
}

func loadConfig(ctx *cli.Context, log *zap.Logger) (config.Config, error) {
	return conf.Parse[config.Config](conf.ParseOptions{
		Cli:       ctx,
		CliMap:    cliMap,
		Defaults:  config.Defaults(),
		EnvPrefix: config.EnvPrefix,
		FileName:  ctx.Path("config"),
		Log:       log,
	})
}
